package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormatting(t *testing.T) {
	err := New(ErrorTimeout, "tcp://10.0.0.1:9000", "Add", "deadline exceeded")
	require.Equal(t, "ccrpc: ERROR_TIMEOUT calling Add@tcp://10.0.0.1:9000: deadline exceeded", err.Error())
}

func TestInvalidConvenienceConstructor(t *testing.T) {
	err := Invalid("tcp://10.0.0.1:9000", "Add", "bad arg count")
	require.Equal(t, ErrorInvalid, err.Status)
	require.Equal(t, "Add", err.MethodName)
}

func TestCodeStringUnknownFallsBackToNumeric(t *testing.T) {
	require.Equal(t, "CODE(99)", Code(99).String())
}

func TestCodeStringKnownValues(t *testing.T) {
	cases := map[Code]string{
		Success:          "SUCCESS",
		ErrorInvalid:     "ERROR_INVALID",
		ErrorTimeout:     "ERROR_TIMEOUT",
		ErrorUnavailable: "ERROR_UNAVAILABLE",
		Busy:             "BUSY",
		Idle:             "IDLE",
		Pending:          "PENDING",
	}
	for code, want := range cases {
		require.Equal(t, want, code.String())
	}
}
