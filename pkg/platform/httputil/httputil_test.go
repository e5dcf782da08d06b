package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impactledger/pkg/domain-errors"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	cases := map[string]struct {
		err       error
		status    int
		code      string
		desc      string
		retryable bool
	}{
		"escrow shortfall": {
			err:       dErrors.New(dErrors.CodeInsufficientBalance, "escrow holds 1000"),
			status:    http.StatusUnprocessableEntity,
			code:      "insufficient_balance",
			desc:      "escrow holds 1000",
			retryable: true,
		},
		"eta not reached": {
			err:       dErrors.New(dErrors.CodeTimelockNotReady, "eta not reached"),
			status:    http.StatusUnprocessableEntity,
			code:      "timelock_not_ready",
			desc:      "eta not reached",
			retryable: true,
		},
		"internal hides message": {
			err:    dErrors.New(dErrors.CodeInternal, "db failed"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		"uncoded error": {
			err:    errors.New("pq: connection reset"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tc.err)

			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			body := decodeError(t, rr)
			assert.Equal(t, tc.code, body.Error)
			assert.Equal(t, tc.desc, body.Description)
			assert.Equal(t, tc.retryable, body.Retryable)
		})
	}
}

func TestStatusFor(t *testing.T) {
	for code, want := range map[dErrors.Code]int{
		dErrors.CodeValidation:            http.StatusBadRequest,
		dErrors.CodeUnauthorized:          http.StatusUnauthorized,
		dErrors.CodeForbidden:             http.StatusForbidden,
		dErrors.CodeNotFound:              http.StatusNotFound,
		dErrors.CodeInvalidState:          http.StatusConflict,
		dErrors.CodeDuplicateRegistration: http.StatusConflict,
		dErrors.CodeInsufficientBalance:   http.StatusUnprocessableEntity,
		dErrors.CodeInvariantViolation:    http.StatusLocked,
		dErrors.CodeExternalDependency:    http.StatusBadGateway,
		dErrors.CodeTimeout:               http.StatusGatewayTimeout,
	} {
		assert.Equal(t, want, StatusFor(code), code)
	}
}

func TestDecodeJSON(t *testing.T) {
	type donation struct {
		Amount int64  `json:"amount"`
		Memo   string `json:"memo"`
	}
	decode := func(body string) (donation, error) {
		var d donation
		err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &d)
		return d, err
	}

	d, err := decode(`{"amount":500,"memo":"school"}`)
	require.NoError(t, err)
	assert.Equal(t, donation{Amount: 500, Memo: "school"}, d)

	_, err = decode(``)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))

	_, err = decode(`{"amount":500,"currency":"EUR"}`)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err), "unknown field")
}
