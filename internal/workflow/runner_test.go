package workflow_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"debugiq.app/backend/internal/collab"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/workflow"
)

var _ = Describe("Runner", func() {
	var (
		ctx       context.Context
		st        store.IssueStore
		notifier  *recordingNotifier
		registry  *workflow.Registry
		provider  *mockContextProvider
		diagnoser *mockDiagnoser
		suggester *mockPatchSuggester
		validator *mockValidator
		publisher *mockPublisher
		runner    *workflow.Runner
	)

	successSequence := []model.Status{
		model.StatusFetchingDetails,
		model.StatusDiagnosisInProgress,
		model.StatusDiagnosisComplete,
		model.StatusPatchSuggestionInProgress,
		model.StatusPatchSuggestionComplete,
		model.StatusPatchValidationInProgress,
		model.StatusPatchValidated,
		model.StatusPRCreationInProgress,
		model.StatusPRCreated,
	}

	seed := func(id string) {
		Expect(st.Put(ctx, &model.Issue{
			ID:            id,
			Title:         "login crash",
			ErrorMessage:  "panic: nil map write",
			RelevantFiles: []string{"auth/session.go"},
			Repository:    "group/app",
			Status:        model.StatusSeeded,
		})).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemory()
		notifier = &recordingNotifier{}
		registry = workflow.NewRegistry()
		provider = &mockContextProvider{}
		diagnoser = &mockDiagnoser{}
		suggester = &mockPatchSuggester{}
		validator = &mockValidator{}
		publisher = &mockPublisher{}

		runner = workflow.NewRunner(st, notifier, workflow.Collaborators{
			Context:   provider,
			Diagnoser: diagnoser,
			Suggester: suggester,
			Validator: validator,
			Publisher: publisher,
		}, registry, time.Minute)
	})

	Describe("Execute", func() {
		It("walks the full status sequence on success", func() {
			seed("i-1")

			Expect(runner.Execute(ctx, "i-1")).To(Succeed())
			Expect(notifier.Statuses()).To(Equal(successSequence))
		})

		It("leaves every causal dependency attached at terminal success", func() {
			seed("i-1")

			Expect(runner.Execute(ctx, "i-1")).To(Succeed())

			issue, err := st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusPRCreated))
			Expect(issue.StatusError).To(BeNil())
			Expect(issue.Diagnosis).NotTo(BeNil())
			Expect(issue.PatchSuggestion).NotTo(BeNil())
			Expect(issue.ValidationResults).NotTo(BeNil())
			Expect(issue.ValidationResults.Passed()).To(BeTrue())
			Expect(issue.PRDetails).NotTo(BeNil())
			Expect(issue.PRDetails.URL).NotTo(BeEmpty())
		})

		It("keeps updated_at non-decreasing across the run", func() {
			seed("i-1")

			Expect(runner.Execute(ctx, "i-1")).To(Succeed())

			events := notifier.Events()
			for i := 1; i < len(events); i++ {
				Expect(events[i].UpdatedAt.Before(events[i-1].UpdatedAt)).To(BeFalse(),
					"updated_at went backwards between %s and %s", events[i-1].Status, events[i].Status)
			}
		})

		It("returns ErrNotFound for an unknown id without creating state", func() {
			Expect(runner.Execute(ctx, "missing")).To(MatchError(store.ErrNotFound))

			_, err := st.Get(ctx, "missing")
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(notifier.Statuses()).To(BeEmpty())
		})

		Context("when the diagnoser cannot be reached", func() {
			It("fails the workflow with a transport status_error", func() {
				seed("i-1")
				diagnoser.diagnoseFn = func(_ context.Context, _ *model.Issue, _ []collab.FileContext) (*model.Diagnosis, error) {
					return nil, errors.New("connection refused")
				}

				Expect(runner.Execute(ctx, "i-1")).To(Succeed())

				issue, err := st.Get(ctx, "i-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Status).To(Equal(model.StatusWorkflowFailed))
				Expect(issue.StatusError).NotTo(BeNil())
				Expect(*issue.StatusError).To(ContainSubstring("step diagnose failed"))
				Expect(*issue.StatusError).To(ContainSubstring("connection refused"))
				Expect(issue.Diagnosis).To(BeNil())
				Expect(issue.PatchSuggestion).To(BeNil())
			})
		})

		Context("when the model produces no patch", func() {
			It("fails with a negative-result status_error, keeping the diagnosis", func() {
				seed("i-1")
				suggester.suggestFn = func(_ context.Context, _ *model.Issue, _ *model.Diagnosis, _ []collab.FileContext) (*model.PatchSuggestion, error) {
					return &model.PatchSuggestion{Explanation: "nothing to change"}, nil
				}

				Expect(runner.Execute(ctx, "i-1")).To(Succeed())

				issue, err := st.Get(ctx, "i-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Status).To(Equal(model.StatusWorkflowFailed))
				Expect(issue.StatusError).NotTo(BeNil())
				Expect(*issue.StatusError).To(ContainSubstring("suggest_patch"))
				Expect(*issue.StatusError).To(ContainSubstring("negative result"))
				Expect(issue.Diagnosis).NotTo(BeNil())
				Expect(issue.ValidationResults).To(BeNil())
			})
		})

		Context("when validation fails", func() {
			It("fails the workflow and keeps the failed results attached", func() {
				seed("i-1")
				validator.validateFn = func(_ context.Context, _ *model.Issue, _ *model.PatchSuggestion) (*model.ValidationResults, error) {
					return &model.ValidationResults{
						Status:  model.ValidationFailed,
						Summary: "tests fail",
						Checks: []model.ValidationCheck{
							{Check: "Bug Reproduction", Status: "failed", Details: "tests fail"},
						},
					}, nil
				}

				Expect(runner.Execute(ctx, "i-1")).To(Succeed())

				issue, err := st.Get(ctx, "i-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(issue.Status).To(Equal(model.StatusWorkflowFailed))
				Expect(issue.StatusError).NotTo(BeNil())
				Expect(*issue.StatusError).To(ContainSubstring("validate_patch"))
				Expect(*issue.StatusError).To(ContainSubstring("tests fail"))
				Expect(issue.ValidationResults).NotTo(BeNil())
				Expect(issue.ValidationResults.Passed()).To(BeFalse())
				Expect(issue.PRDetails).To(BeNil())

				Expect(notifier.Statuses()).NotTo(ContainElement(model.StatusPatchValidated))
			})
		})

		It("clears results from a previous run before re-running", func() {
			seed("i-1")
			validator.validateFn = func(_ context.Context, _ *model.Issue, _ *model.PatchSuggestion) (*model.ValidationResults, error) {
				return &model.ValidationResults{Status: model.ValidationFailed, Summary: "tests fail"}, nil
			}
			Expect(runner.Execute(ctx, "i-1")).To(Succeed())

			validator.validateFn = nil
			diagnoser.diagnoseFn = func(_ context.Context, _ *model.Issue, _ []collab.FileContext) (*model.Diagnosis, error) {
				return &model.Diagnosis{RootCause: "second run root cause"}, nil
			}
			Expect(runner.Execute(ctx, "i-1")).To(Succeed())

			issue, err := st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusPRCreated))
			Expect(issue.StatusError).To(BeNil())
			Expect(issue.Diagnosis.RootCause).To(Equal("second run root cause"))
			Expect(issue.ValidationResults.Passed()).To(BeTrue())
		})

		It("respects the per-step timeout", func() {
			runner = workflow.NewRunner(st, notifier, workflow.Collaborators{
				Context:   provider,
				Diagnoser: diagnoser,
				Suggester: suggester,
				Validator: validator,
				Publisher: publisher,
			}, registry, 10*time.Millisecond)
			seed("i-1")

			diagnoser.diagnoseFn = func(stepCtx context.Context, _ *model.Issue, _ []collab.FileContext) (*model.Diagnosis, error) {
				<-stepCtx.Done()
				return nil, stepCtx.Err()
			}

			Expect(runner.Execute(ctx, "i-1")).To(Succeed())

			issue, err := st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusWorkflowFailed))
			Expect(*issue.StatusError).To(ContainSubstring("step diagnose failed"))
		})
	})

	Describe("Trigger", func() {
		It("runs to terminal success in the background", func() {
			seed("i-1")

			Expect(runner.Trigger(ctx, "i-1")).To(Succeed())

			Eventually(func() model.Status {
				issue, err := st.Get(ctx, "i-1")
				if err != nil {
					return ""
				}
				return issue.Status
			}).Should(Equal(model.StatusPRCreated))
		})

		It("returns ErrNotFound for an unknown id", func() {
			Expect(runner.Trigger(ctx, "missing")).To(MatchError(store.ErrNotFound))
		})

		It("rejects a concurrent trigger for the same issue", func() {
			seed("i-1")

			release := make(chan struct{})
			diagnoser.diagnoseFn = func(_ context.Context, _ *model.Issue, _ []collab.FileContext) (*model.Diagnosis, error) {
				<-release
				return &model.Diagnosis{RootCause: "slow"}, nil
			}

			Expect(runner.Trigger(ctx, "i-1")).To(Succeed())
			Eventually(func() bool { return runner.Running("i-1") }).Should(BeTrue())

			Expect(runner.Trigger(ctx, "i-1")).To(MatchError(workflow.ErrRunInProgress))

			close(release)
			Eventually(func() bool { return runner.Running("i-1") }).Should(BeFalse())

			issue, err := st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusPRCreated))
		})

		It("allows triggers for different issues to run concurrently", func() {
			seed("i-1")
			seed("i-2")

			release := make(chan struct{})
			diagnoser.diagnoseFn = func(_ context.Context, _ *model.Issue, _ []collab.FileContext) (*model.Diagnosis, error) {
				<-release
				return &model.Diagnosis{RootCause: "slow"}, nil
			}

			Expect(runner.Trigger(ctx, "i-1")).To(Succeed())
			Expect(runner.Trigger(ctx, "i-2")).To(Succeed())
			Eventually(func() bool {
				return runner.Running("i-1") && runner.Running("i-2")
			}).Should(BeTrue())

			close(release)
			Eventually(func() bool {
				return runner.Running("i-1") || runner.Running("i-2")
			}).Should(BeFalse())
		})

		It("allows a manual re-trigger once the previous run finished", func() {
			seed("i-1")

			Expect(runner.Trigger(ctx, "i-1")).To(Succeed())
			Eventually(func() bool { return runner.Running("i-1") }).Should(BeFalse())
			issue, err := st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusPRCreated))

			Expect(runner.Trigger(ctx, "i-1")).To(Succeed())
			Eventually(func() bool { return runner.Running("i-1") }).Should(BeFalse())

			issue, err = st.Get(ctx, "i-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(issue.Status).To(Equal(model.StatusPRCreated))
			Expect(notifier.Statuses()).To(HaveLen(18))
		})
	})
})
