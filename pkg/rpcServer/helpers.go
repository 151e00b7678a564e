package rpcServer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	CallerHeader    = "X-Caller"
	RequestIdHeader = "X-Request-Id"

	maxBodyBytes = 4 << 20

	// 2^256-1 has 78 decimal digits
	maxAmountDigits = 78
	maxAmountLength = 128
)

type requestIdKey struct{}

func requestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}

// invalidRequestError marks input the server refuses before reaching the ledger.
type invalidRequestError struct {
	message string
}

func (e *invalidRequestError) Error() string {
	return e.message
}

func invalidRequest(format string, args ...any) error {
	return &invalidRequestError{message: fmt.Sprintf(format, args...)}
}

func statusForError(err error) int {
	var invalid *invalidRequestError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotGovernance):
		return http.StatusForbidden
	case ledger.IsRevertErr(err):
		return http.StatusBadRequest
	case errors.Is(err, ledgerService.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *RpcServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Sugar().Errorw("Failed to write response", zap.Error(err))
	}
}

func (s *RpcServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.Logger.Sugar().Errorw("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", requestIdFromContext(r.Context())),
			zap.Error(err),
		)
	}
	s.writeJSON(w, status, &ErrorResponse{
		RequestId: requestIdFromContext(r.Context()),
		Error:     err.Error(),
		Revert:    ledger.IsRevertErr(err),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return invalidRequest("invalid request body: %v", err)
	}
	return nil
}

func callerFromRequest(r *http.Request) (common.Address, error) {
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		return common.Address{}, invalidRequest("missing %s header", CallerHeader)
	}
	return parseAddress(caller)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, invalidRequest("invalid address '%s'", s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount accepts non-negative integers in decimal notation, including
// exponent forms such as 1e18. Values must fit in 256 bits.
func parseAmount(s string) (*big.Int, error) {
	if len(s) > maxAmountLength {
		return nil, invalidRequest("amount is longer than %d characters", maxAmountLength)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, invalidRequest("invalid amount '%s'", s)
	}
	// bound the exponent before Truncate/BigInt expand it
	if exp := d.Exponent(); exp > maxAmountDigits || exp < -maxAmountDigits {
		return nil, invalidRequest("amount exponent out of range, got '%s'", s)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return nil, invalidRequest("amount must be a non-negative integer, got '%s'", s)
	}
	v := d.BigInt()
	if v.BitLen() > 256 {
		return nil, invalidRequest("amount does not fit in 256 bits, got '%s'", s)
	}
	return v, nil
}

func parseAmounts(values []string) ([]*big.Int, error) {
	amounts := make([]*big.Int, 0, len(values))
	for _, v := range values {
		a, err := parseAmount(v)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, a)
	}
	return amounts, nil
}

func parseAddresses(values []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(values))
	for _, v := range values {
		a, err := parseAddress(v)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func parseUintParam(r *http.Request, name string) (uint64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, invalidRequest("invalid %s '%s'", name, raw)
	}
	return v, true, nil
}
