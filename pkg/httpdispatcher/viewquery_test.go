package httpdispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnErrorPolarity(t *testing.T) {
	require.Equal(t, "stop", OnError(true))
	require.Equal(t, "continue", OnError(false))
}

func TestViewQueryOptionsEncode(t *testing.T) {
	v := ViewQueryOptions{StopOnError: true}.Encode()
	require.Equal(t, "stop", v.Get("on_error"))

	v = ViewQueryOptions{StopOnError: false}.Encode()
	require.Equal(t, "continue", v.Get("on_error"))
}
