package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	milestonemodels "impactledger/internal/milestone/models"
	"impactledger/internal/transport/http/mocks"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/requestcontext"
)

//go:generate mockgen -source=handlers_milestone.go -destination=mocks/mocks.go -package=mocks MilestoneService

func newMilestoneRouter(t *testing.T) (http.Handler, *mocks.MockMilestoneService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockMilestoneService(ctrl)
	r := chi.NewRouter()
	NewMilestoneHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, svc
}

func serveAs(h http.Handler, who domain.Address, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(requestcontext.WithCaller(req.Context(), who))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMilestoneHandler_Create(t *testing.T) {
	router, svc := newMilestoneRouter(t)
	ngoID := domain.NewNGOID()
	id := domain.NewMilestoneID()
	deadline := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	svc.EXPECT().Create(gomock.Any(), domain.Address("0xngo"), milestonemodels.Draft{
		NGOID:        ngoID,
		Description:  "Build well",
		TargetAmount: 500_000,
		Deadline:     deadline,
		Approver:     "0xapprover",
	}).Return(id, nil)

	body := `{"ngo_id":"` + ngoID.String() + `","description":"Build well","target_amount":500000,` +
		`"deadline":"2026-09-01T00:00:00Z","approver":"0xapprover"}`
	rr := serveAs(router, "0xngo", http.MethodPost, "/milestones", body)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp idResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, id.String(), resp.ID)
}

func TestMilestoneHandler_CreateRejectsUnknownFields(t *testing.T) {
	router, _ := newMilestoneRouter(t)
	rr := serveAs(router, "0xngo", http.MethodPost, "/milestones", `{"amount":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMilestoneHandler_ReleaseErrors(t *testing.T) {
	id := domain.NewMilestoneID()
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"not approved": {dErrors.New(dErrors.CodeInvalidState, "milestone is submitted"), http.StatusConflict, "invalid_state"},
		"escrow short": {dErrors.New(dErrors.CodeInsufficientBalance, "escrow holds 0"), http.StatusUnprocessableEntity, "insufficient_balance"},
		"unknown":      {dErrors.New(dErrors.CodeNotFound, "no milestone"), http.StatusNotFound, "not_found"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			router, svc := newMilestoneRouter(t)
			svc.EXPECT().Release(gomock.Any(), domain.Address("0xanyone"), id).Return(tc.err)

			rr := serveAs(router, "0xanyone", http.MethodPost, "/milestones/"+id.String()+"/release", "")
			assert.Equal(t, tc.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.code)
		})
	}
}

func TestMilestoneHandler_BadID(t *testing.T) {
	router, _ := newMilestoneRouter(t)
	rr := serveAs(router, "0xngo", http.MethodPost, "/milestones/not-a-uuid/submit", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMilestoneHandler_RejectAndResubmit(t *testing.T) {
	router, svc := newMilestoneRouter(t)
	id := domain.NewMilestoneID()
	next := domain.NewMilestoneID()

	svc.EXPECT().Reject(gomock.Any(), domain.Address("0xapprover"), id, "photos missing").Return(nil)
	rr := serveAs(router, "0xapprover", http.MethodPost, "/milestones/"+id.String()+"/reject", `{"reason":"photos missing"}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	svc.EXPECT().Resubmit(gomock.Any(), domain.Address("0xngo"), id, time.Time{}).Return(next, nil)
	rr = serveAs(router, "0xngo", http.MethodPost, "/milestones/"+id.String()+"/resubmit", `{}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), next.String())
}

func TestMilestoneHandler_ListByNGO(t *testing.T) {
	router, svc := newMilestoneRouter(t)
	ngoID := domain.NewNGOID()
	svc.EXPECT().ListByNGO(gomock.Any(), ngoID).Return(nil, nil)

	rr := serveAs(router, "0xngo", http.MethodGet, "/milestones?ngo_id="+ngoID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}
