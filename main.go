package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/structprep/structfan/archive"
	"github.com/structprep/structfan/config"
	"github.com/structprep/structfan/dataset"
	"github.com/structprep/structfan/log"
	"github.com/structprep/structfan/plan"
	"github.com/structprep/structfan/report"
	"github.com/structprep/structfan/scheduler"
	"github.com/structprep/structfan/toolchain"
	"github.com/structprep/structfan/topology"
	"github.com/structprep/structfan/ui"
)

var (
	version = "1.0.0"

	configFlag     string
	inputDirFlag   string
	outputDirFlag  string
	logDirFlag     string
	subjectsFlag   []string
	sessionsFlag   []string
	modalitiesFlag string
	isotropicFlag  float64
	shapeFlag      string
	keepDepthFlag  bool
	maskFlag       string
	fsBinFlag      string
	jobsFlag       int
	threadsFlag    int
	joinPolicyFlag string
	exitPolicyFlag string
	workerCmdFlag  string
	strictExitFlag bool
	watchFlag      bool
	dryRunFlag     bool

	packDerivFlag      string
	packOutFlag        string
	packModalitiesFlag string
	packSubjectsFlag   []string
	packSessionsFlag   []string
	packShardSizeFlag  int
	packPrefixFlag     string
	packStartIndexFlag int
	packGroupFlag      bool
	packWorkersFlag    int
	packDryRunFlag     bool

	rootCmd = &cobra.Command{
		Use:           "structfan",
		Short:         "structfan - fan structprep preprocessing out across a dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(cmd)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Dispatch one structprep worker per subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(cmd)
		},
	}

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Print the concurrency plan without dispatching anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}
			if run.InputDir == "" && len(run.Subjects) == 0 {
				return fmt.Errorf("input directory or subject list is required")
			}

			subjects, err := dataset.Resolve(run.Subjects, run.InputDir)
			if err != nil {
				return err
			}
			p := plan.Compute(topology.Cores(), len(subjects), run.Jobs, run.Threads)
			fmt.Println(p.String())
			if p.Oversubscribed() {
				fmt.Printf("warning: %d jobs x %d threads oversubscribe %d cores\n",
					p.Jobs, p.ThreadsPerJob, p.Cores)
			}
			return nil
		},
	}

	packCmd = &cobra.Command{
		Use:   "pack",
		Short: "Pack final derivatives into tar shards for training",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := archive.Pack(ctx, archive.Options{
				DerivativesDir: packDerivFlag,
				OutDir:         packOutFlag,
				Modalities:     splitCSV(packModalitiesFlag),
				Subjects:       packSubjectsFlag,
				Sessions:       packSessionsFlag,
				ShardSize:      packShardSizeFlag,
				Prefix:         packPrefixFlag,
				StartIndex:     packStartIndexFlag,
				GroupBySubject: packGroupFlag,
				Workers:        packWorkersFlag,
				DryRun:         packDryRunFlag,
			})
			if err != nil {
				return err
			}
			if packDryRunFlag {
				fmt.Printf("would write %d samples across %d shards\n", res.Samples, res.ShardCount)
				return nil
			}
			fmt.Printf("wrote %d samples across %d shards\n", res.Samples, len(res.Shards))
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of structfan",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("structfan version %s\n", version)
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := config.LoadRun(configFlag)
			if err != nil {
				return err
			}
			configJson, _ := json.MarshalIndent(run, "", "  ")
			fmt.Printf("Config:\n%s\n", configJson)

			fmt.Printf("Cores: %d\n", topology.Cores())
			tc := toolchain.Locate(run.FSBin)
			fmt.Printf("FreeSurfer bin: %q\n", tc.BinDir)
			if missing := tc.Missing(); len(missing) > 0 {
				fmt.Printf("Missing tools: %s\n", strings.Join(missing, ", "))
			} else {
				fmt.Printf("Required tools found: %s\n", strings.Join(toolchain.RequiredTools, ", "))
			}
			return nil
		},
	}
)

func runMain(cmd *cobra.Command) error {
	run, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	if err := run.Validate(); err != nil {
		return err
	}
	if run.LogDir == "" {
		run.LogDir = filepath.Join(run.OutputDir, "logs")
	}
	if err := os.MkdirAll(run.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.MkdirAll(run.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	log.Initialize(run.LogDir)
	defer log.Close()

	subjects, err := dataset.Resolve(run.Subjects, run.InputDir)
	if err != nil {
		return err
	}

	p := plan.Compute(topology.Cores(), len(subjects), run.Jobs, run.Threads)
	log.InfoLog.Printf("plan: %s", p)
	fmt.Printf("Dispatching %d subjects: %s\n", len(subjects), p)
	if p.Forced() && p.Oversubscribed() {
		log.WarningLog.Printf("plan oversubscribes the machine: %d jobs x %d threads > %d cores",
			p.Jobs, p.ThreadsPerJob, p.Cores)
		fmt.Fprintf(os.Stderr, "Warning: %d jobs x %d threads oversubscribe %d cores\n",
			p.Jobs, p.ThreadsPerJob, p.Cores)
	}

	tc := toolchain.Locate(run.FSBin)
	if missing := tc.Missing(); len(missing) > 0 {
		log.WarningLog.Printf("FreeSurfer tools not found: %s", strings.Join(missing, ", "))
		fmt.Fprintf(os.Stderr, "Warning: FreeSurfer tools not found: %s\n", strings.Join(missing, ", "))
	}

	prov := dataset.GetProvenance(run.InputDir)
	if prov != nil {
		log.InfoLog.Printf("dataset provenance: commit=%s dirty=%v", prov.CommitSHA, prov.Dirty)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan scheduler.Event, 2*len(subjects)+4)
	sched := scheduler.New(scheduler.Options{
		Plan:      p,
		Run:       run,
		Toolchain: tc,
		Events:    events,
	})

	watch := run.Watch && term.IsTerminal(int(os.Stdout.Fd()))
	boardDone := make(chan struct{})
	if watch {
		go func() {
			defer close(boardDone)
			if err := ui.Run(p, events, stop); err != nil {
				log.WarningLog.Printf("monitor exited with error: %v", err)
			}
		}()
	}

	summary, runErr := sched.Run(ctx, subjects)
	close(events)
	if watch {
		<-boardDone
	}

	styled := term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	fmt.Println(report.Render(summary, styled))

	manifestPath, err := report.WriteManifest(run.LogDir, report.NewManifest(p, prov, summary))
	if err != nil {
		log.ErrorLog.Printf("failed to write run manifest: %v", err)
	} else {
		log.InfoLog.Printf("run manifest: %s", manifestPath)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run canceled before completion")
		}
		return runErr
	}
	if run.StrictExit && summary.Fail() > 0 {
		return fmt.Errorf("%d of %d subjects failed", summary.Fail(), summary.Total())
	}
	return nil
}

// loadRunConfig merges defaults, the optional YAML file, and any flags the
// user actually set on this invocation.
func loadRunConfig(cmd *cobra.Command) (*config.Run, error) {
	run, err := config.LoadRun(configFlag)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("input-dir") {
		run.InputDir = inputDirFlag
	}
	if f.Changed("output-dir") {
		run.OutputDir = outputDirFlag
	}
	if f.Changed("log-dir") {
		run.LogDir = logDirFlag
	}
	if f.Changed("subjects") {
		run.Subjects = subjectsFlag
	}
	if f.Changed("sessions") {
		run.Sessions = sessionsFlag
	}
	if f.Changed("modalities") {
		run.Modalities = splitCSV(modalitiesFlag)
	}
	if f.Changed("isotropic") {
		run.Isotropic = isotropicFlag
	}
	if f.Changed("shape") {
		run.Shape = shapeFlag
	}
	if f.Changed("keep-depth") {
		run.KeepDepth = keepDepthFlag
	}
	if f.Changed("mask-aggressiveness") {
		run.MaskAggressiveness = maskFlag
	}
	if f.Changed("fs-bin") {
		run.FSBin = fsBinFlag
	}
	if f.Changed("jobs") {
		run.Jobs = jobsFlag
	}
	if f.Changed("threads") {
		run.Threads = threadsFlag
	}
	if f.Changed("join-policy") {
		run.JoinPolicy = joinPolicyFlag
	}
	if f.Changed("exit-policy") {
		run.ExitPolicy = exitPolicyFlag
	}
	if f.Changed("worker-cmd") {
		run.WorkerCmd = workerCmdFlag
	}
	if f.Changed("strict-exit") {
		run.StrictExit = strictExitFlag
	}
	if f.Changed("watch") {
		run.Watch = watchFlag
	}
	if f.Changed("dry-run") {
		run.DryRun = dryRunFlag
	}
	return run, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFlag, "config", "", "YAML run configuration file")
	f.StringVarP(&inputDirFlag, "input-dir", "i", "", "BIDS-like dataset root (one sub-* directory per subject)")
	f.StringVarP(&outputDirFlag, "output-dir", "o", "", "Derivatives root the workers write into")
	f.StringVar(&logDirFlag, "log-dir", "", "Directory for job logs and the run manifest (default <output-dir>/logs)")
	f.StringSliceVar(&subjectsFlag, "subjects", nil, "Explicit subject list (sub-XXX form); default scans the input directory")
	f.StringSliceVar(&sessionsFlag, "sessions", nil, "Session filter forwarded to every worker")
	f.StringVar(&modalitiesFlag, "modalities", "T1w,T2w,FLAIR", "CSV of modalities to preprocess")
	f.Float64Var(&isotropicFlag, "isotropic", 1.0, "Isotropic voxel size in mm")
	f.StringVar(&shapeFlag, "shape", "256x256", "In-plane shape HxW")
	f.BoolVar(&keepDepthFlag, "keep-depth", true, "Keep the native depth axis")
	f.StringVar(&maskFlag, "mask-aggressiveness", config.MaskLiberal, "Brain mask aggressiveness (liberal, medium or conservative)")
	f.StringVar(&fsBinFlag, "fs-bin", "", "FreeSurfer bin directory override")
	f.IntVarP(&jobsFlag, "jobs", "j", 0, "Concurrent subject jobs (0 = auto)")
	f.IntVar(&threadsFlag, "threads", 0, "Threads per job (0 = auto)")
	f.StringVar(&joinPolicyFlag, "join-policy", config.JoinAny, "Slot reclaim policy: any or oldest")
	f.StringVar(&exitPolicyFlag, "exit-policy", config.ExitIgnore, "Worker exit status policy: ignore or fallback")
	f.StringVar(&workerCmdFlag, "worker-cmd", config.DefaultWorkerCmd, "Worker executable to dispatch")
	f.BoolVar(&strictExitFlag, "strict-exit", false, "Exit non-zero when any subject failed")
	f.BoolVar(&watchFlag, "watch", false, "Show a live job board while dispatching")
	f.BoolVar(&dryRunFlag, "dry-run", false, "Forward --dry-run to every worker")
}

func init() {
	addRunFlags(rootCmd)
	addRunFlags(runCmd)
	addRunFlags(planCmd)

	debugCmd.Flags().StringVar(&configFlag, "config", "", "YAML run configuration file")

	pf := packCmd.Flags()
	pf.StringVar(&packDerivFlag, "derivatives-dir", "", "structprep output directory (contains sub-*/ses-*/anat)")
	pf.StringVar(&packOutFlag, "out-dir", "", "Output directory for shards (default <derivatives-dir>/wds)")
	pf.StringVar(&packModalitiesFlag, "modalities", "T1w,FLAIR", "CSV of modalities to include")
	pf.StringSliceVar(&packSubjectsFlag, "subjects", nil, "Optional subject filter")
	pf.StringSliceVar(&packSessionsFlag, "sessions", nil, "Optional session filter")
	pf.IntVar(&packShardSizeFlag, "shard-size", archive.DefaultShardSize, "Target samples per shard")
	pf.StringVar(&packPrefixFlag, "prefix", archive.DefaultPrefix, "Shard filename prefix")
	pf.IntVar(&packStartIndexFlag, "start-index", 1, "Starting shard index")
	pf.BoolVar(&packGroupFlag, "group-by-subject", false, "Keep each subject's samples within the same shard when possible")
	pf.IntVar(&packWorkersFlag, "workers", 0, "Concurrent shard writers (0 = core count)")
	pf.BoolVar(&packDryRunFlag, "dry-run", false, "Do not write shards; print the plan")
	if err := packCmd.MarkFlagRequired("derivatives-dir"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(debugCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
