package memdproto

// Opcode identifies the operation carried by a frame (spec §6).
type Opcode byte

const (
	OpGet        Opcode = 0x00
	OpSet        Opcode = 0x01
	OpAdd        Opcode = 0x02
	OpReplace    Opcode = 0x03
	OpDelete     Opcode = 0x04
	OpIncrement  Opcode = 0x05
	OpDecrement  Opcode = 0x06
	OpAppend     Opcode = 0x0e
	OpPrepend    Opcode = 0x0f
	OpGetK       Opcode = 0x0c
	OpGetL       Opcode = 0x94
	OpTouch      Opcode = 0x1c
	OpGetAndTouch Opcode = 0x1d
	OpHello      Opcode = 0x1f
	OpSASLList   Opcode = 0x20
	OpSASLAuth   Opcode = 0x21
	OpSASLStep   Opcode = 0x22
	OpGetClusterConfig Opcode = 0xb5
	OpGetErrorMap      Opcode = 0xfe
	OpSelectBucket     Opcode = 0x89
	OpObserve          Opcode = 0x92
	OpObserveSeqno     Opcode = 0x91
	OpNoOp             Opcode = 0x0a

	OpSubdocGet           Opcode = 0xc5
	OpSubdocExists        Opcode = 0xc6
	OpSubdocDictAdd       Opcode = 0xc7
	OpSubdocDictUpsert    Opcode = 0xc8
	OpSubdocDelete        Opcode = 0xc9
	OpSubdocReplace       Opcode = 0xca
	OpSubdocArrayPushLast Opcode = 0xcb
	OpSubdocArrayPushFirst Opcode = 0xcc
	OpSubdocArrayInsert   Opcode = 0xcd
	OpSubdocArrayAddUnique Opcode = 0xce
	OpSubdocCounter       Opcode = 0xcf
	OpSubdocMultiLookup   Opcode = 0xd0
	OpSubdocMultiMutation Opcode = 0xd1
)

// Magic identifies whether a frame is a request or response.
type Magic byte

const (
	MagicRequest  Magic = 0x80
	MagicResponse Magic = 0x81
)
