package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/scoring"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination map[string]int         `json:"pagination"`
}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, target, nil)
	} else {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	return c, w
}

func asUser(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: role, Email: id + "@example.com"})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type smartServiceMock struct {
	recommendResp []scoring.ScoredCourse
	recommendReq  dto.RecommendRequest
	meritResp     []scoring.MeritEntry
	meritHit      bool
	meritQuery    dto.MeritListQuery
	exportResp    *service.MeritExport
	exportErr     error
	predictResp   *scoring.Prediction
	predictErr    error
	predictReq    dto.PredictRequest
}

func (m *smartServiceMock) RecommendCourses(ctx context.Context, req dto.RecommendRequest) ([]scoring.ScoredCourse, error) {
	m.recommendReq = req
	return m.recommendResp, nil
}

func (m *smartServiceMock) MeritList(ctx context.Context, query dto.MeritListQuery) ([]scoring.MeritEntry, bool, error) {
	m.meritQuery = query
	return m.meritResp, m.meritHit, nil
}

func (m *smartServiceMock) ExportMeritList(ctx context.Context, query dto.MeritListQuery) (*service.MeritExport, error) {
	return m.exportResp, m.exportErr
}

func (m *smartServiceMock) PredictAdmission(ctx context.Context, req dto.PredictRequest) (*scoring.Prediction, error) {
	m.predictReq = req
	return m.predictResp, m.predictErr
}

func TestSmartHandlerRecommendCourses(t *testing.T) {
	mock := &smartServiceMock{recommendResp: []scoring.ScoredCourse{{CourseID: "course-1", Score: 88}}}
	handler := NewSmartHandler(mock)

	c, w := newTestContext(http.MethodPost, "/smart/recommend-courses", `{"percentage":"88","previousEducation":"12th Science","interests":"coding"}`)
	handler.RecommendCourses(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "coding", mock.recommendReq.Interests)
	var body dto.RecommendResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 88, body.Recommendations[0].Score)
}

func TestSmartHandlerAcceptsNumericPercentage(t *testing.T) {
	score := 72
	mock := &smartServiceMock{predictResp: &scoring.Prediction{CourseID: "course-1", ChanceScore: &score}}
	handler := NewSmartHandler(mock)

	c, w := newTestContext(http.MethodPost, "/smart/recommend-courses", `{"percentage":95,"previousEducation":"12th Science"}`)
	handler.RecommendCourses(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PercentageText("95"), mock.recommendReq.Percentage)
	assert.Equal(t, 95.0, mock.recommendReq.Percentage.Value())

	c, w = newTestContext(http.MethodPost, "/smart/predict-admission", `{"course":"CSE101","percentage":85.5}`)
	handler.PredictAdmission(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 85.5, mock.predictReq.Percentage.Value())

	c, w = newTestContext(http.MethodPost, "/smart/predict-admission", `{"course":"CSE101","percentage":true}`)
	handler.PredictAdmission(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSmartHandlerRecommendCoursesBadJSON(t *testing.T) {
	handler := NewSmartHandler(&smartServiceMock{})

	c, w := newTestContext(http.MethodPost, "/smart/recommend-courses", `{"percentage":`)
	handler.RecommendCourses(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestSmartHandlerMeritListReportsCacheHit(t *testing.T) {
	mock := &smartServiceMock{meritResp: []scoring.MeritEntry{{Rank: 1, ApplicationID: "app-1"}}, meritHit: true}
	handler := NewSmartHandler(mock)

	c, w := newTestContext(http.MethodGet, "/smart/merit-list?course=CSE101&category=SC&limit=10", "")
	asUser(c, "admin", models.RoleAdmin)
	handler.MeritList(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.MeritListQuery{Course: "CSE101", Category: "SC", Limit: 10}, mock.meritQuery)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var body dto.MeritListResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.Count)
}

func TestSmartHandlerExportMeritList(t *testing.T) {
	mock := &smartServiceMock{exportResp: &service.MeritExport{Filename: "merit-list.csv", ContentType: "text/csv; charset=utf-8", Payload: []byte("Rank\n1\n")}}
	handler := NewSmartHandler(mock)

	c, w := newTestContext(http.MethodGet, "/smart/merit-list/export?format=csv", "")
	handler.ExportMeritList(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "merit-list.csv")
	assert.Equal(t, "Rank\n1\n", w.Body.String())
}

func TestSmartHandlerExportUnsupportedFormat(t *testing.T) {
	handler := NewSmartHandler(&smartServiceMock{exportErr: appErrors.Clone(appErrors.ErrUnsupportedExport, "unsupported export format \"xlsx\"")})

	c, w := newTestContext(http.MethodGet, "/smart/merit-list/export?format=xlsx", "")
	handler.ExportMeritList(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_EXPORT_FORMAT", decode(t, w).Error.Code)
}

func TestSmartHandlerPredictAdmission(t *testing.T) {
	score := 72
	handler := NewSmartHandler(&smartServiceMock{predictResp: &scoring.Prediction{CourseID: "course-1", Chance: scoring.ChanceHigh, ChanceScore: &score}})

	c, w := newTestContext(http.MethodPost, "/smart/predict-admission", `{"course":"CSE101","percentage":"91"}`)
	handler.PredictAdmission(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body dto.PredictResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	require.NotNil(t, body.Prediction.ChanceScore)
	assert.Equal(t, 72, *body.Prediction.ChanceScore)
}

func TestSmartHandlerPredictAdmissionNotFound(t *testing.T) {
	handler := NewSmartHandler(&smartServiceMock{predictErr: appErrors.Clone(appErrors.ErrNotFound, "course not found")})

	c, w := newTestContext(http.MethodPost, "/smart/predict-admission", `{"course":"nope","percentage":"91"}`)
	handler.PredictAdmission(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func ginParam(key, value string) gin.Param {
	return gin.Param{Key: key, Value: value}
}
