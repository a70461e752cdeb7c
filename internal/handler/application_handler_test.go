package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type applicationServiceMock struct {
	actor      service.Actor
	statusReq  dto.UpdateStatusRequest
	bulkReq    dto.BulkStatusRequest
	bulkStatus string
	listQuery  dto.ApplicationListQuery
	confirmErr error
	err        error
}

func (m *applicationServiceMock) Submit(ctx context.Context, actor service.Actor, req models.SubmitApplicationRequest) (*models.Application, error) {
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.Application{ID: "app-1", ApplicationNumber: "APP2026000001", Status: models.StatusPending}, nil
}

func (m *applicationServiceMock) Get(ctx context.Context, actor service.Actor, id string) (*models.Application, error) {
	m.actor = actor
	return &models.Application{ID: id}, m.err
}

func (m *applicationServiceMock) ListMine(ctx context.Context, actor service.Actor) ([]models.Application, error) {
	m.actor = actor
	return []models.Application{{ID: "app-1"}}, nil
}

func (m *applicationServiceMock) List(ctx context.Context, query dto.ApplicationListQuery) ([]models.Application, *response.Pagination, error) {
	m.listQuery = query
	return []models.Application{{ID: "app-1"}}, &response.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, nil
}

func (m *applicationServiceMock) Stats(ctx context.Context) (*dto.ApplicationStatsResponse, error) {
	return &dto.ApplicationStatsResponse{Total: 3}, nil
}

func (m *applicationServiceMock) UpdateStatus(ctx context.Context, actor service.Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error) {
	m.actor = actor
	m.statusReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Application{ID: id, Status: models.ApplicationStatus(req.Status)}, nil
}

func (m *applicationServiceMock) ConfirmAdmission(ctx context.Context, actor service.Actor, id string) (*dto.ConfirmAdmissionResponse, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	return &dto.ConfirmAdmissionResponse{StudentID: "STU26CSE0001", RollNumber: "2026CSE0001", SeatAllocated: true}, nil
}

func (m *applicationServiceMock) BulkApprove(ctx context.Context, actor service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error) {
	m.bulkStatus = "approve"
	m.bulkReq = req
	return &dto.BulkStatusResponse{Requested: len(req.ApplicationIDs), Updated: len(req.ApplicationIDs)}, nil
}

func (m *applicationServiceMock) BulkReject(ctx context.Context, actor service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error) {
	m.bulkStatus = "reject"
	m.bulkReq = req
	return &dto.BulkStatusResponse{Requested: len(req.ApplicationIDs)}, nil
}

func TestApplicationHandlerSubmitUsesActor(t *testing.T) {
	mock := &applicationServiceMock{}
	handler := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodPost, "/applications", `{"firstName":"Asha","lastName":"Rao","email":"asha@example.com","course":"CSE101","percentage":"88","previousEducation":"12th"}`)
	c.Request.Header.Set("User-Agent", "portal-test")
	asUser(c, "user-1", models.RoleApplicant)
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", mock.actor.UserID)
	assert.Equal(t, models.RoleApplicant, mock.actor.Role)
	assert.Equal(t, "portal-test", mock.actor.UserAgent)
}

func TestApplicationHandlerSubmitConflict(t *testing.T) {
	handler := NewApplicationHandler(&applicationServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "application already exists for this course")})

	c, w := newTestContext(http.MethodPost, "/applications", `{"firstName":"Asha"}`)
	asUser(c, "user-1", models.RoleApplicant)
	handler.Submit(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApplicationHandlerListPagination(t *testing.T) {
	mock := &applicationServiceMock{}
	handler := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodGet, "/applications?status=Pending&page=2&pageSize=10&search=asha", "")
	asUser(c, "admin", models.RoleAdmin)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ApplicationListQuery{Status: "Pending", Search: "asha", Page: 2, PageSize: 10}, mock.listQuery)
	env := decode(t, w)
	assert.Equal(t, 11, env.Pagination["total_count"])
}

func TestApplicationHandlerUpdateStatus(t *testing.T) {
	mock := &applicationServiceMock{}
	handler := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodPut, "/applications/app-9/status", `{"status":"Approved","remarks":"meets cutoff"}`)
	c.Params = append(c.Params, ginParam("id", "app-9"))
	asUser(c, "admin", models.RoleAdmin)
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Approved", mock.statusReq.Status)
	require.NotNil(t, mock.statusReq.Remarks)
	assert.Equal(t, "admin", mock.actor.UserID)

	var app models.Application
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &app))
	assert.Equal(t, "app-9", app.ID)
}

func TestApplicationHandlerConfirmAdmission(t *testing.T) {
	handler := NewApplicationHandler(&applicationServiceMock{})

	c, w := newTestContext(http.MethodPost, "/applications/app-1/confirm-admission", "")
	c.Params = append(c.Params, ginParam("id", "app-1"))
	asUser(c, "admin", models.RoleAdmin)
	handler.ConfirmAdmission(c)

	require.Equal(t, http.StatusOK, w.Code)
	var res dto.ConfirmAdmissionResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, "STU26CSE0001", res.StudentID)
	assert.True(t, res.SeatAllocated)
}

func TestApplicationHandlerConfirmAdmissionPrecondition(t *testing.T) {
	handler := NewApplicationHandler(&applicationServiceMock{confirmErr: appErrors.Clone(appErrors.ErrAdmissionPrecondition, "")})

	c, w := newTestContext(http.MethodPost, "/applications/app-1/confirm-admission", "")
	c.Params = append(c.Params, ginParam("id", "app-1"))
	handler.ConfirmAdmission(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ADMISSION_PRECONDITION_FAILED", decode(t, w).Error.Code)
}

func TestApplicationHandlerBulk(t *testing.T) {
	mock := &applicationServiceMock{}
	handler := NewApplicationHandler(mock)

	c, w := newTestContext(http.MethodPost, "/applications/bulk-approve", `{"applicationIds":["a","b"]}`)
	handler.BulkApprove(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approve", mock.bulkStatus)
	assert.Equal(t, []string{"a", "b"}, mock.bulkReq.ApplicationIDs)

	c, w = newTestContext(http.MethodPost, "/applications/bulk-reject", `{"applicationIds":`)
	handler.BulkReject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "approve", mock.bulkStatus)
}
