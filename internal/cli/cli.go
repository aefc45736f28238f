package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Deepaks31/Workflow-Automation-Engine/internal/config"
	internal_http "github.com/Deepaks31/Workflow-Automation-Engine/internal/http"
	"github.com/Deepaks31/Workflow-Automation-Engine/internal/log"
	internal_storage "github.com/Deepaks31/Workflow-Automation-Engine/internal/storage"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (defaults to config)")

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new request against a workflow",
		Run: func(cmd *cobra.Command, args []string) {
			workflowID, _ := cmd.Flags().GetInt64("workflow")
			initiatorID, _ := cmd.Flags().GetInt64("initiator")
			payload, _ := cmd.Flags().GetString("payload")
			if workflowID == 0 || initiatorID == 0 {
				fmt.Fprintln(os.Stderr, "Error: --workflow and --initiator are required")
				os.Exit(1)
			}
			svc, closeStore := newService(cmd)
			defer closeStore()
			req, err := svc.CreateRequest(workflowID, initiatorID, []byte(payload))
			if err != nil {
				fatalf("failed to submit request: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Submitted request %d on workflow %d (status %s, level %d)\n",
				req.ID, req.WorkflowID, req.Status, req.CurrentLevel)
		},
	}
	submitCmd.Flags().Int64("workflow", 0, "Workflow ID")
	submitCmd.Flags().Int64("initiator", 0, "Initiator user ID")
	submitCmd.Flags().String("payload", "", "Opaque request payload")

	approveCmd := &cobra.Command{
		Use:   "approve [request-id]",
		Short: "Approve a request at its current level",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requestID := parseID(args[0])
			approverID, _ := cmd.Flags().GetInt64("approver")
			if approverID == 0 {
				fmt.Fprintln(os.Stderr, "Error: --approver is required")
				os.Exit(1)
			}
			svc, closeStore := newService(cmd)
			defer closeStore()
			req, err := svc.Approve(requestID, approverID)
			if err != nil {
				fatalf("failed to approve request: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Request %d is now %s at level %d\n", req.ID, req.Status, req.CurrentLevel)
		},
	}
	approveCmd.Flags().Int64("approver", 0, "Approver user ID")

	rejectCmd := &cobra.Command{
		Use:   "reject [request-id]",
		Short: "Reject a request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requestID := parseID(args[0])
			approverID, _ := cmd.Flags().GetInt64("approver")
			remarks, _ := cmd.Flags().GetString("remarks")
			if approverID == 0 {
				fmt.Fprintln(os.Stderr, "Error: --approver is required")
				os.Exit(1)
			}
			svc, closeStore := newService(cmd)
			defer closeStore()
			req, err := svc.Reject(requestID, approverID, remarks)
			if err != nil {
				fatalf("failed to reject request: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Request %d rejected\n", req.ID)
		},
	}
	rejectCmd.Flags().Int64("approver", 0, "Approver user ID")
	rejectCmd.Flags().String("remarks", "", "Rejection remarks")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List requests submitted by an initiator",
		Run: func(cmd *cobra.Command, args []string) {
			initiatorID, _ := cmd.Flags().GetInt64("initiator")
			if initiatorID == 0 {
				fmt.Fprintln(os.Stderr, "Error: --initiator is required")
				os.Exit(1)
			}
			svc, closeStore := newService(cmd)
			defer closeStore()
			requests, err := svc.ListByInitiator(initiatorID)
			if err != nil {
				fatalf("failed to list requests: %v", err)
			}
			if len(requests) == 0 {
				fmt.Fprintf(os.Stdout, "No requests found.\n")
				return
			}
			for _, req := range requests {
				fmt.Fprintf(os.Stdout, "- ID: %d, Workflow: %d, Status: %s, Level: %d, Created: %s\n",
					req.ID, req.WorkflowID, req.Status, req.CurrentLevel, req.CreatedAt.Format(time.RFC3339))
			}
		},
	}
	listCmd.Flags().Int64("initiator", 0, "Initiator user ID")

	auditCmd := &cobra.Command{
		Use:   "audit [request-id]",
		Short: "Print a request's audit and escalation trail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requestID := parseID(args[0])
			svc, closeStore := newService(cmd)
			defer closeStore()
			records, err := svc.AuditTrail(requestID)
			if err != nil {
				fatalf("failed to get audit trail: %v", err)
			}
			for _, rec := range records {
				fmt.Fprintf(os.Stdout, "- %s %s at level %d (%s -> %s) %s\n",
					rec.ActionAt.Format(time.RFC3339), rec.Action, rec.LevelNo, rec.PreviousStatus, rec.NewStatus, rec.Remarks)
			}
			escalations, err := svc.EscalationTrail(requestID)
			if err != nil {
				fatalf("failed to get escalation trail: %v", err)
			}
			for _, rec := range escalations {
				fmt.Fprintf(os.Stdout, "- %s %s from level %d to level %d: %s\n",
					rec.ActionAt.Format(time.RFC3339), rec.Action, rec.FromLevel, rec.ToLevel, rec.Reason)
			}
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo two-level workflow for local runs",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(connStr(cmd))
			defer store.Close()
			wf := models.Workflow{
				Name:        "purchase-approval",
				Description: "Demo two-level purchase approval",
				Status:      models.ActiveWorkflowStatus,
				CreatedBy:   "seed",
				CreatedAt:   time.Now(),
				Levels: []models.ApprovalLevel{
					{LevelNo: 1, Role: "MANAGER", EscalationHours: 2},
					{LevelNo: 2, Role: "FINANCE", EscalationHours: 4},
				},
			}
			id, err := store.SaveWorkflow(wf)
			if err != nil {
				fatalf("failed to seed workflow: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Seeded workflow '%s' with ID %d\n", wf.Name, id)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the escalation scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadConfig()
			if err != nil {
				fatalf("failed to load config: %v", err)
			}
			conn := connStr(cmd)
			if conn == "" {
				conn = cfg.ConnString()
			}
			store := initStore(conn)
			defer store.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc := service.NewRequestService(store, service.SystemClock(), log.GetLogger())
			scheduler := service.NewEscalationScheduler(ctx, svc, cfg.SweepInterval(), cfg.Scheduler.Workers, log.GetLogger())
			scheduler.Start()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh
				log.GetLogger().Infof("Shutdown signal received")
				scheduler.Stop()
				cancel()
				os.Exit(0)
			}()

			if err := internal_http.StartServer(cfg.HTTP.Port, svc); err != nil {
				fatalf("server failed: %v", err)
			}
		},
	}

	rootCmd.AddCommand(submitCmd, approveCmd, rejectCmd, listCmd, auditCmd, seedCmd, serveCmd)
}

func newService(cmd *cobra.Command) (*service.RequestService, func()) {
	store := initStore(connStr(cmd))
	svc := service.NewRequestService(store, service.SystemClock(), log.GetLogger())
	return svc, func() { store.Close() }
}

func connStr(cmd *cobra.Command) string {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err == nil && dbConnStr != "" {
		return dbConnStr
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	return cfg.ConnString()
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}

func parseID(arg string) int64 {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error parsing id as number: %v\n", arg)
		os.Exit(1)
	}
	return id
}

func fatalf(format string, args ...interface{}) {
	log.GetLogger().Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
