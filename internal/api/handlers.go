package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/Wieedze/intuition-fee-proxy/internal/proxy"
)

// Amounts and term ids travel as 0x-prefixed quantity strings, addresses
// as hex strings.

type createAtomsRequest struct {
	Receiver string          `json:"receiver"`
	Data     []hexutil.Bytes `json:"data"`
	Amounts  []*hexutil.Big  `json:"amounts"`
	CurveID  *hexutil.Big    `json:"curve_id"`
	Payment  *hexutil.Big    `json:"payment"`
}

type createTriplesRequest struct {
	Receiver   string         `json:"receiver"`
	Subjects   []*hexutil.Big `json:"subjects"`
	Predicates []*hexutil.Big `json:"predicates"`
	Objects    []*hexutil.Big `json:"objects"`
	Amounts    []*hexutil.Big `json:"amounts"`
	CurveID    *hexutil.Big   `json:"curve_id"`
	Payment    *hexutil.Big   `json:"payment"`
}

type depositRequest struct {
	Receiver  string       `json:"receiver"`
	TermID    *hexutil.Big `json:"term_id"`
	CurveID   *hexutil.Big `json:"curve_id"`
	MinShares *hexutil.Big `json:"min_shares"`
	Payment   *hexutil.Big `json:"payment"`
}

type depositBatchRequest struct {
	Receiver  string         `json:"receiver"`
	TermIDs   []*hexutil.Big `json:"term_ids"`
	CurveIDs  []*hexutil.Big `json:"curve_ids"`
	Amounts   []*hexutil.Big `json:"amounts"`
	MinShares []*hexutil.Big `json:"min_shares"`
	Payment   *hexutil.Big   `json:"payment"`
}

type createResult struct {
	OperationID string         `json:"operation_id"`
	TermIDs     []*hexutil.Big `json:"term_ids"`
	Fee         *hexutil.Big   `json:"fee"`
	VaultCost   *hexutil.Big   `json:"vault_cost"`
}

type depositResult struct {
	OperationID string       `json:"operation_id"`
	Amount      *hexutil.Big `json:"amount"`
	Shares      *hexutil.Big `json:"shares"`
	Fee         *hexutil.Big `json:"fee"`
}

type depositBatchResult struct {
	OperationID string         `json:"operation_id"`
	Shares      []*hexutil.Big `json:"shares"`
	Fee         *hexutil.Big   `json:"fee"`
	VaultCost   *hexutil.Big   `json:"vault_cost"`
}

func fromHex(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}

func fromHexSlice(vs []*hexutil.Big) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = fromHex(v)
	}
	return out
}

func toHex(v *big.Int) *hexutil.Big {
	if v == nil {
		v = new(big.Int)
	}
	return (*hexutil.Big)(v)
}

func toHexSlice(vs []*big.Int) []*hexutil.Big {
	out := make([]*hexutil.Big, len(vs))
	for i, v := range vs {
		out[i] = toHex(v)
	}
	return out
}

func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleCreateAtoms(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req createAtomsRequest
	if !s.decode(w, r, &req) {
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data := make([][]byte, len(req.Data))
	for i, d := range req.Data {
		data[i] = d
	}

	res, err := s.proxy.CreateAtoms(r.Context(), proxy.CreateAtomsRequest{
		Caller:   caller,
		Receiver: receiver,
		Data:     data,
		Amounts:  fromHexSlice(req.Amounts),
		CurveID:  fromHex(req.CurveID),
		Payment:  fromHex(req.Payment),
	})
	if err != nil {
		s.writeProxyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, createResult{
		OperationID: res.OperationID,
		TermIDs:     toHexSlice(res.TermIDs),
		Fee:         toHex(res.Fee),
		VaultCost:   toHex(res.VaultCost),
	})
}

func (s *Server) handleCreateTriples(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req createTriplesRequest
	if !s.decode(w, r, &req) {
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.proxy.CreateTriples(r.Context(), proxy.CreateTriplesRequest{
		Caller:     caller,
		Receiver:   receiver,
		Subjects:   fromHexSlice(req.Subjects),
		Predicates: fromHexSlice(req.Predicates),
		Objects:    fromHexSlice(req.Objects),
		Amounts:    fromHexSlice(req.Amounts),
		CurveID:    fromHex(req.CurveID),
		Payment:    fromHex(req.Payment),
	})
	if err != nil {
		s.writeProxyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, createResult{
		OperationID: res.OperationID,
		TermIDs:     toHexSlice(res.TermIDs),
		Fee:         toHex(res.Fee),
		VaultCost:   toHex(res.VaultCost),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.proxy.Deposit(r.Context(), proxy.DepositRequest{
		Caller:    caller,
		Receiver:  receiver,
		TermID:    fromHex(req.TermID),
		CurveID:   fromHex(req.CurveID),
		MinShares: fromHex(req.MinShares),
		Payment:   fromHex(req.Payment),
	})
	if err != nil {
		s.writeProxyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, depositResult{
		OperationID: res.OperationID,
		Amount:      toHex(res.Amount),
		Shares:      toHex(res.Shares),
		Fee:         toHex(res.Fee),
	})
}

func (s *Server) handleDepositBatch(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req depositBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.proxy.DepositBatch(r.Context(), proxy.DepositBatchRequest{
		Caller:    caller,
		Receiver:  receiver,
		TermIDs:   fromHexSlice(req.TermIDs),
		CurveIDs:  fromHexSlice(req.CurveIDs),
		Amounts:   fromHexSlice(req.Amounts),
		MinShares: fromHexSlice(req.MinShares),
		Payment:   fromHex(req.Payment),
	})
	if err != nil {
		s.writeProxyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, depositBatchResult{
		OperationID: res.OperationID,
		Shares:      toHexSlice(res.Shares),
		Fee:         toHex(res.Fee),
		VaultCost:   toHex(res.VaultCost),
	})
}

func (s *Server) handleAtomCost(w http.ResponseWriter, r *http.Request) {
	cost, err := s.proxy.AtomUnitCost(r.Context())
	if err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*hexutil.Big{"cost": toHex(cost)})
}

func (s *Server) handleTripleCost(w http.ResponseWriter, r *http.Request) {
	cost, err := s.proxy.TripleUnitCost(r.Context())
	if err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*hexutil.Big{"cost": toHex(cost)})
}

func (s *Server) handleIsTermCreated(w http.ResponseWriter, r *http.Request) {
	id, ok := new(big.Int).SetString(mux.Vars(r)["id"], 0)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid term id")
		return
	}

	created, err := s.proxy.IsTermCreated(r.Context(), id)
	if err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"created": created})
}

func (s *Server) handleSharesOf(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	owner, err := parseAddress(vars["owner"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	term, ok := new(big.Int).SetString(vars["term"], 0)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid term id")
		return
	}
	curve, ok := new(big.Int).SetString(vars["curve"], 0)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid curve id")
		return
	}

	shares, err := s.proxy.SharesOf(r.Context(), owner, term, curve)
	if err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*hexutil.Big{"shares": toHex(shares)})
}

type feeScheduleView struct {
	FixedFee      *hexutil.Big   `json:"fixed_fee"`
	PercentageFee uint64         `json:"percentage_fee"`
	Recipient     common.Address `json:"recipient"`
}

func (s *Server) handleFees(w http.ResponseWriter, _ *http.Request) {
	sched := s.proxy.Schedule()
	s.writeJSON(w, http.StatusOK, feeScheduleView{
		FixedFee:      toHex(sched.FixedFee),
		PercentageFee: sched.PercentageFee,
		Recipient:     sched.Recipient,
	})
}

// handleFeeQuote computes forward and inverse fees for the current
// schedule without touching any state.
func (s *Server) handleFeeQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sched := s.proxy.Schedule()

	count := uint64(1)
	if raw := q.Get("count"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = parsed
	}

	amount := new(big.Int)
	if raw := q.Get("amount"); raw != "" {
		parsed, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		amount = parsed
	}

	out := map[string]*hexutil.Big{
		"deposit_fee":        toHex(sched.DepositFee(count, amount)),
		"total_deposit_cost": toHex(sched.TotalDepositCost(amount)),
	}
	if raw := q.Get("payment"); raw != "" {
		payment, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "invalid payment")
			return
		}
		out["inverse_amount"] = toHex(sched.InverseDepositAmount(payment))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type feeCollectionView struct {
	ID        string         `json:"id"`
	Payer     common.Address `json:"payer"`
	Amount    *hexutil.Big   `json:"amount"`
	Operation string         `json:"operation"`
	CreatedAt string         `json:"created_at"`
}

func (s *Server) handleFeeCollections(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	rows, err := s.ledger.FeeCollections(r.Context(), limit)
	if err != nil {
		s.writeProxyError(w, err)
		return
	}

	out := make([]feeCollectionView, len(rows))
	for i, row := range rows {
		out[i] = feeCollectionView{
			ID:        row.ID,
			Payer:     row.Payer,
			Amount:    toHex(row.Amount),
			Operation: row.Operation,
			CreatedAt: row.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := s.ledger.Balance(r.Context(), addr)
	if err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*hexutil.Big{"balance": toHex(balance)})
}

func (s *Server) handleSetFixedFee(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Fee *hexutil.Big `json:"fee"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.proxy.SetDepositFixedFee(caller, fromHex(req.Fee)); err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSetPercentageFee(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Fee uint64 `json:"fee"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.proxy.SetDepositPercentageFee(caller, req.Fee); err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSetRecipient(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Address string `json:"address"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	recipient, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.proxy.SetFeeRecipient(caller, recipient); err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleListAdmins(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.proxy.Admins())
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.proxy.SetWhitelistedAdmin(caller, addr, req.Enabled); err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

// handleMint funds a ledger account. Admin-gated: this is the development
// analogue of value arriving from outside the system.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if !s.proxy.IsAdmin(caller) {
		s.writeProxyError(w, proxy.ErrNotWhitelistedAdmin)
		return
	}

	var req struct {
		Address string       `json:"address"`
		Amount  *hexutil.Big `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.Mint(r.Context(), addr, fromHex(req.Amount)); err != nil {
		s.writeProxyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}
