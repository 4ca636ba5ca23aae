package collab_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/collab"
	"debugiq.app/backend/internal/model"
)

var _ = Describe("SimulatedValidator", func() {
	var (
		ctx   context.Context
		issue *model.Issue
		patch *model.PatchSuggestion
	)

	BeforeEach(func() {
		ctx = context.Background()
		issue = &model.Issue{ID: "ISSUE-1", Title: "login crash"}
		patch = &model.PatchSuggestion{Diff: "--- a/auth.go\n+++ b/auth.go\n"}
	})

	It("passes the simulated check battery", func() {
		v := collab.NewSimulatedValidator(nil)

		results, err := v.ValidatePatch(ctx, issue, patch)

		Expect(err).NotTo(HaveOccurred())
		Expect(results.Passed()).To(BeTrue())
		Expect(results.Checks).To(HaveLen(4))
		Expect(results.Summary).To(ContainSubstring("Patch Applies Cleanly"))
		Expect(results.Summary).To(ContainSubstring("Build Status"))
	})

	It("appends the reviewer assessment when a review model is configured", func() {
		review := &mockLLM{
			chatFn: func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
				Expect(req.UserPrompt).To(ContainSubstring("login crash"))
				payload := `{"assessment":"Small and focused, safe to merge."}`
				Expect(json.Unmarshal([]byte(payload), result)).To(Succeed())
				return &llm.Response{}, nil
			},
		}

		results, err := collab.NewSimulatedValidator(review).ValidatePatch(ctx, issue, patch)

		Expect(err).NotTo(HaveOccurred())
		Expect(results.Passed()).To(BeTrue())
		Expect(results.Summary).To(ContainSubstring("Reviewer assessment: Small and focused"))
	})

	It("keeps the plain check summary when the review returns nothing", func() {
		review := &mockLLM{
			chatFn: func(_ context.Context, _ llm.Request, _ any) (*llm.Response, error) {
				return &llm.Response{}, nil
			},
		}

		results, err := collab.NewSimulatedValidator(review).ValidatePatch(ctx, issue, patch)

		Expect(err).NotTo(HaveOccurred())
		Expect(results.Summary).NotTo(ContainSubstring("Reviewer assessment"))
	})
})

var _ = Describe("LLMDiagnoser", func() {
	var issue *model.Issue

	BeforeEach(func() {
		issue = &model.Issue{
			ID:           "ISSUE-1",
			Title:        "login crash",
			ErrorMessage: "panic: assignment to entry in nil map",
		}
	})

	It("returns a diagnosis built from the structured response", func() {
		client := &mockLLM{
			chatFn: func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
				Expect(req.UserPrompt).To(ContainSubstring("nil map"))
				Expect(req.UserPrompt).To(ContainSubstring("auth/session.go"))
				payload := `{"root_cause":"session cache map is never initialized","summary":"nil map write","suggested_fix_areas":["auth/session.go#L42"],"confidence":0.9}`
				Expect(json.Unmarshal([]byte(payload), result)).To(Succeed())
				return &llm.Response{}, nil
			},
		}

		files := []collab.FileContext{{Path: "auth/session.go", Content: "package auth"}}
		diagnosis, err := collab.NewLLMDiagnoser(client, 4096).Diagnose(context.Background(), issue, files)

		Expect(err).NotTo(HaveOccurred())
		Expect(diagnosis.RootCause).To(ContainSubstring("never initialized"))
		Expect(diagnosis.SuggestedFixAreas).To(Equal([]string{"auth/session.go#L42"}))
		Expect(diagnosis.Confidence).To(BeNumerically("~", 0.9, 0.001))
		Expect(diagnosis.Model).To(Equal("mock-model"))
	})

	It("rejects a response without a root cause", func() {
		client := &mockLLM{
			chatFn: func(_ context.Context, _ llm.Request, _ any) (*llm.Response, error) {
				return &llm.Response{}, nil
			},
		}

		_, err := collab.NewLLMDiagnoser(client, 4096).Diagnose(context.Background(), issue, nil)

		Expect(err).To(MatchError(ContainSubstring("missing root cause")))
	})

	It("propagates non-retryable client failures", func() {
		client := &mockLLM{
			chatFn: func(_ context.Context, _ llm.Request, _ any) (*llm.Response, error) {
				return nil, fmt.Errorf("request timed out: %w", context.DeadlineExceeded)
			},
		}

		_, err := collab.NewLLMDiagnoser(client, 4096).Diagnose(context.Background(), issue, nil)

		Expect(err).To(MatchError(ContainSubstring("diagnosing issue")))
	})
})

var _ = Describe("LLMPatchSuggester", func() {
	It("returns the diff and post-patch file contents", func() {
		client := &mockLLM{
			chatFn: func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
				Expect(req.UserPrompt).To(ContainSubstring("Diagnosis:"))
				payload := `{"diff":"--- a/auth/session.go\n+++ b/auth/session.go\n","explanation":"initialize the map","files":[{"path":"auth/session.go","content":"package auth\n"}]}`
				Expect(json.Unmarshal([]byte(payload), result)).To(Succeed())
				return &llm.Response{}, nil
			},
		}

		issue := &model.Issue{ID: "ISSUE-1", Title: "login crash"}
		diagnosis := &model.Diagnosis{RootCause: "nil map"}
		patch, err := collab.NewLLMPatchSuggester(client, 4096).SuggestPatch(context.Background(), issue, diagnosis, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(patch.Diff).To(ContainSubstring("auth/session.go"))
		Expect(patch.Files).To(HaveLen(1))
		Expect(patch.Files[0].Path).To(Equal("auth/session.go"))
		Expect(patch.Model).To(Equal("mock-model"))
	})

	It("passes through an empty diff as a result, not an error", func() {
		client := &mockLLM{
			chatFn: func(_ context.Context, _ llm.Request, result any) (*llm.Response, error) {
				payload := `{"diff":"","explanation":"not enough context for a safe fix","files":[]}`
				Expect(json.Unmarshal([]byte(payload), result)).To(Succeed())
				return &llm.Response{}, nil
			},
		}

		issue := &model.Issue{ID: "ISSUE-1", Title: "login crash"}
		patch, err := collab.NewLLMPatchSuggester(client, 4096).SuggestPatch(context.Background(), issue, &model.Diagnosis{RootCause: "x"}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(patch.Diff).To(BeEmpty())
		Expect(patch.Files).To(BeEmpty())
		Expect(patch.Explanation).To(ContainSubstring("not enough context"))
	})
})

var _ = Describe("mock collaborators", func() {
	It("produce a runnable end-to-end result from issue text alone", func() {
		ctx := context.Background()
		issue := &model.Issue{
			ID:            "ISSUE-1",
			Title:         "login crash",
			Repository:    "group/app",
			RelevantFiles: []string{"auth/session.go"},
		}

		files, err := collab.StaticContextProvider{}.FetchContext(ctx, issue)
		Expect(err).NotTo(HaveOccurred())

		diagnosis, err := collab.MockDiagnoser{}.Diagnose(ctx, issue, files)
		Expect(err).NotTo(HaveOccurred())
		Expect(diagnosis.SuggestedFixAreas).To(ContainElement("auth/session.go"))

		patch, err := collab.MockPatchSuggester{}.SuggestPatch(ctx, issue, diagnosis, files)
		Expect(err).NotTo(HaveOccurred())
		Expect(patch.Diff).NotTo(BeEmpty())

		pr, err := collab.MockPublisher{}.PublishPullRequest(ctx, issue, patch, diagnosis, &model.ValidationResults{Status: model.ValidationPassed})
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.URL).NotTo(BeEmpty())
		Expect(pr.Branch).To(Equal("debugiq/fix-ISSUE-1"))
	})

	It("returns an empty patch when the issue names no files", func() {
		patch, err := collab.MockPatchSuggester{}.SuggestPatch(context.Background(), &model.Issue{ID: "ISSUE-2", Title: "vague report"}, &model.Diagnosis{}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(patch.Diff).To(BeEmpty())
		Expect(patch.Files).To(BeEmpty())
	})
})
