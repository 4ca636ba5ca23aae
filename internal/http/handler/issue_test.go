package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"debugiq.app/backend/internal/http/handler"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
)

var _ = Describe("IssueHandler", func() {
	var (
		router   *gin.Engine
		issues   *mockIssueService
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		issues = &mockIssueService{}
		h := handler.NewIssueHandler(issues)
		router.GET("/issues", h.List)
		router.GET("/issues/inbox", h.Inbox)
		router.GET("/issues/attention-needed", h.AttentionNeeded)
		router.POST("/issues/ingest", h.Ingest)
		router.GET("/issues/:id", h.Get)
		router.GET("/issues/:id/status", h.GetStatus)
		recorder = httptest.NewRecorder()
	})

	get := func(path string) {
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	}

	Describe("GetStatus", func() {
		It("returns the status pair", func() {
			msg := "step diagnose failed: boom"
			issues.getStatusFn = func(_ context.Context, issueID string) (*model.StatusRef, error) {
				Expect(issueID).To(Equal("ISSUE-1"))
				return &model.StatusRef{Status: model.StatusWorkflowFailed, StatusError: &msg}, nil
			}

			get("/issues/ISSUE-1/status")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["issue_id"]).To(Equal("ISSUE-1"))
			Expect(resp["status"]).To(Equal(string(model.StatusWorkflowFailed)))
			Expect(resp["status_error"]).To(Equal(msg))
		})

		It("omits status_error when the issue is healthy", func() {
			get("/issues/ISSUE-1/status")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).NotTo(ContainSubstring("status_error"))
		})

		It("returns 404 for an unknown issue", func() {
			issues.getStatusFn = func(_ context.Context, _ string) (*model.StatusRef, error) {
				return nil, store.ErrNotFound
			}

			get("/issues/missing/status")

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when the store fails", func() {
			issues.getStatusFn = func(_ context.Context, _ string) (*model.StatusRef, error) {
				return nil, errors.New("connection refused")
			}

			get("/issues/ISSUE-1/status")

			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		It("returns the full issue", func() {
			issues.getFn = func(_ context.Context, issueID string) (*model.Issue, error) {
				return &model.Issue{
					ID:     issueID,
					Title:  "login crash",
					Status: model.StatusDiagnosisComplete,
					Diagnosis: &model.Diagnosis{
						RootCause: "nil map write in session cache",
					},
				}, nil
			}

			get("/issues/ISSUE-1")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("ISSUE-1"))
			Expect(resp["diagnosis"]).NotTo(BeNil())
		})

		It("returns 404 for an unknown issue", func() {
			issues.getFn = func(_ context.Context, _ string) (*model.Issue, error) {
				return nil, store.ErrNotFound
			}

			get("/issues/missing")

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("List", func() {
		It("passes the parsed status filter to the service", func() {
			var gotStatuses []model.Status
			issues.listByStatusFn = func(_ context.Context, statuses ...model.Status) ([]model.Issue, error) {
				gotStatuses = statuses
				return []model.Issue{{ID: "ISSUE-1", Status: model.StatusSeeded}}, nil
			}

			get("/issues?status=Seeded,New")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(gotStatuses).To(Equal([]model.Status{model.StatusSeeded, model.StatusNew}))

			var resp map[string][]map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["issues"]).To(HaveLen(1))
		})

		It("returns 400 when the status filter is missing", func() {
			get("/issues")

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for an unknown status value", func() {
			get("/issues?status=Bogus")

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Inbox", func() {
		It("returns issues awaiting a workflow", func() {
			issues.inboxFn = func(_ context.Context) ([]model.Issue, error) {
				return []model.Issue{
					{ID: "ISSUE-1", Status: model.StatusNew},
					{ID: "ISSUE-2", Status: model.StatusSeeded},
				}, nil
			}

			get("/issues/inbox")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp map[string][]map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["issues"]).To(HaveLen(2))
		})

		It("returns an empty list rather than null", func() {
			get("/issues/inbox")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(ContainSubstring(`"issues":[]`))
		})
	})

	Describe("AttentionNeeded", func() {
		It("returns failed issues", func() {
			issues.attentionNeededFn = func(_ context.Context) ([]model.Issue, error) {
				return []model.Issue{{ID: "ISSUE-1", Status: model.StatusWorkflowFailed}}, nil
			}

			get("/issues/attention-needed")

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp map[string][]map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["issues"]).To(HaveLen(1))
			Expect(resp["issues"][0]["status"]).To(Equal(string(model.StatusWorkflowFailed)))
		})
	})

	Describe("Ingest", func() {
		postJSON := func(body string) {
			req := httptest.NewRequest(http.MethodPost, "/issues/ingest", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(recorder, req)
		}

		It("returns 201 with the triaged issue", func() {
			issues.ingestFn = func(_ context.Context, req service.IngestRequest) (*model.Issue, error) {
				Expect(req.RawReport).To(ContainSubstring("KeyError"))
				Expect(req.Repository).To(Equal("group/app"))
				return &model.Issue{ID: "ISSUE-9", Title: "Checkout crash", Status: model.StatusNew}, nil
			}

			postJSON(`{"raw_report":"KeyError: 'grand'","repository":"group/app"}`)

			Expect(recorder.Code).To(Equal(http.StatusCreated))
			var resp map[string]any
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("ISSUE-9"))
		})

		It("returns 400 when the report is missing", func() {
			postJSON(`{}`)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when triage fails", func() {
			issues.ingestFn = func(_ context.Context, _ service.IngestRequest) (*model.Issue, error) {
				return nil, errors.New("store down")
			}

			postJSON(`{"raw_report":"KeyError: 'grand'"}`)

			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
