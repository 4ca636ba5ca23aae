package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"debugiq.app/backend/common/id"
	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
)

const rawReport = `Checkout page crashes on submit

Traceback (most recent call last):
  File "billing/checkout.py", line 42, in submit
    total = cart.totals["grand"]
KeyError: 'grand'

Happens for carts created before the totals migration.
Related code in billing/cart.py as well.`

var _ = Describe("IssueService", func() {
	var (
		ctx context.Context
		st  store.IssueStore
		svc service.IssueService
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemory()
		svc = service.NewIssueService(st, nil)

		Expect(id.Init(1)).To(Succeed())
	})

	Describe("Seed", func() {
		It("stores the issue in Seeded status with a generated id", func() {
			issue, err := svc.Seed(ctx, service.SeedRequest{
				Title:        "login crash",
				ErrorMessage: "panic: nil map write",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(issue.ID).NotTo(BeEmpty())
			Expect(issue.Status).To(Equal(model.StatusSeeded))
			Expect(issue.CreatedAt).NotTo(BeZero())

			stored, err := st.Get(ctx, issue.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal("login crash"))
		})

		It("honors a caller-supplied id", func() {
			issue, err := svc.Seed(ctx, service.SeedRequest{ID: "ISSUE-1", Title: "login crash"})

			Expect(err).NotTo(HaveOccurred())
			Expect(issue.ID).To(Equal("ISSUE-1"))
		})

		It("rejects reuse of an existing id instead of overwriting", func() {
			_, err := svc.Seed(ctx, service.SeedRequest{ID: "ISSUE-1", Title: "first"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Seed(ctx, service.SeedRequest{ID: "ISSUE-1", Title: "second"})
			Expect(err).To(MatchError(service.ErrIssueExists))

			stored, getErr := st.Get(ctx, "ISSUE-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal("first"))
		})

		It("generates distinct ids for successive seeds", func() {
			first, err := svc.Seed(ctx, service.SeedRequest{Title: "a"})
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.Seed(ctx, service.SeedRequest{Title: "b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).NotTo(Equal(second.ID))
		})
	})

	Describe("Ingest", func() {
		Context("without a triage model", func() {
			It("extracts title, error message and file paths heuristically", func() {
				issue, err := svc.Ingest(ctx, service.IngestRequest{
					RawReport:  rawReport,
					Repository: "group/app",
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Status).To(Equal(model.StatusNew))
				Expect(issue.Title).To(Equal("Checkout page crashes on submit"))
				Expect(issue.ErrorMessage).To(ContainSubstring("Traceback"))
				Expect(issue.RelevantFiles).To(ContainElements("billing/checkout.py", "billing/cart.py"))
				Expect(issue.Logs).To(Equal(rawReport))
				Expect(issue.Repository).To(Equal("group/app"))
			})

			It("truncates a long first line on a rune boundary", func() {
				issue, err := svc.Ingest(ctx, service.IngestRequest{
					RawReport: strings.Repeat("очень длинная строка ", 10) + "\nError: boom",
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(utf8.ValidString(issue.Title)).To(BeTrue())
				Expect(issue.Title).To(HaveSuffix("..."))
				Expect(utf8.RuneCountInString(issue.Title)).To(BeNumerically("<=", 80))
			})

			It("rejects an empty report", func() {
				_, err := svc.Ingest(ctx, service.IngestRequest{RawReport: "   \n "})
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a triage model", func() {
			It("uses the structured triage result", func() {
				triage := &mockLLM{
					chatFn: func(_ context.Context, _ llm.Request, result any) (*llm.Response, error) {
						payload := `{"title":"Checkout KeyError on legacy carts","description":"totals map misses the grand key","error_message":"KeyError: 'grand'","relevant_files":["billing/checkout.py"]}`
						Expect(json.Unmarshal([]byte(payload), result)).To(Succeed())
						return &llm.Response{}, nil
					},
				}
				svc = service.NewIssueService(st, triage)

				issue, err := svc.Ingest(ctx, service.IngestRequest{RawReport: rawReport})

				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Title).To(Equal("Checkout KeyError on legacy carts"))
				Expect(issue.ErrorMessage).To(Equal("KeyError: 'grand'"))
				Expect(issue.RelevantFiles).To(Equal([]string{"billing/checkout.py"}))
			})

			It("falls back to heuristics when the model returns an unusable result", func() {
				triage := &mockLLM{
					chatFn: func(_ context.Context, _ llm.Request, _ any) (*llm.Response, error) {
						// Completed call, but the result carries no title.
						return &llm.Response{}, nil
					},
				}
				svc = service.NewIssueService(st, triage)

				issue, err := svc.Ingest(ctx, service.IngestRequest{RawReport: rawReport})

				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Title).To(Equal("Checkout page crashes on submit"))
			})
		})
	})

	Describe("GetStatus", func() {
		It("returns the status pair without mutating the issue", func() {
			seeded, err := svc.Seed(ctx, service.SeedRequest{Title: "login crash"})
			Expect(err).NotTo(HaveOccurred())

			first, err := svc.GetStatus(ctx, seeded.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Status).To(Equal(model.StatusSeeded))
			Expect(first.StatusError).To(BeNil())

			second, err := svc.GetStatus(ctx, seeded.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("propagates ErrNotFound", func() {
			_, err := svc.GetStatus(ctx, "missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("views", func() {
		It("lists seeded and new issues in the inbox", func() {
			_, err := svc.Seed(ctx, service.SeedRequest{ID: "s-1", Title: "a"})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Ingest(ctx, service.IngestRequest{RawReport: "Error: something broke"})
			Expect(err).NotTo(HaveOccurred())

			issues, err := svc.Inbox(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(issues).To(HaveLen(2))
		})

		It("lists failed issues as attention-needed", func() {
			_, err := svc.Seed(ctx, service.SeedRequest{ID: "s-1", Title: "a"})
			Expect(err).NotTo(HaveOccurred())
			_, err = st.UpdateStatus(ctx, "s-1", model.StatusFetchingDetails, nil)
			Expect(err).NotTo(HaveOccurred())
			msg := "step diagnose failed: boom"
			_, err = st.UpdateStatus(ctx, "s-1", model.StatusWorkflowFailed, &msg)
			Expect(err).NotTo(HaveOccurred())

			issues, err := svc.AttentionNeeded(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(issues).To(HaveLen(1))
			Expect(issues[0].ID).To(Equal("s-1"))
		})
	})
})
