// Package controller starts the headwind-controller binary: the
// manager process hosting the UpdateRequest reconciler, the Event-Source
// Dispatcher's polling scheduler, and the webhook-intake/approval-API
// HTTP servers (SPEC_FULL.md §6). Cobra wiring and debug-flag handling
// are carried over from the teacher's fleet-controller entrypoint
// (internal/cmd/controller/root.go), trimmed of the Fleet-specific
// subcommands (cleanup, agentmanagement, gitops) this domain has no use
// for.
package controller

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	clog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	command "github.com/headwind-sh/headwind/internal/cmd"
)

// HeadwindController is the fields of the headwind-controller binary's
// root command (flags + env bindings, per the teacher's struct-tag-driven
// command.Command builder).
type HeadwindController struct {
	command.DebugConfig
	Kubeconfig     string `usage:"Kubeconfig file"`
	Namespace      string `usage:"namespace the controller's leader election lease lives in" default:"headwind-system" env:"NAMESPACE"`
	DisableMetrics bool   `usage:"disable the Prometheus metrics endpoint" name:"disable-metrics"`
}

// BindAddresses holds the address of every HTTP listener the controller opens.
type BindAddresses struct {
	Webhook     string
	API         string
	Metrics     string
	HealthProbe string
}

var (
	setupLog = ctrl.Log.WithName("setup")
	zopts    = zap.Options{
		Development: true,
	}
)

func (r *HeadwindController) PersistentPre(_ *cobra.Command, _ []string) error {
	if err := r.SetupDebug(); err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	return nil
}

func (r *HeadwindController) Run(cmd *cobra.Command, _ []string) error {
	zopts.Development = r.Debug
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zopts)))
	ctx := clog.IntoContext(cmd.Context(), ctrl.Log)

	kubeconfig := ctrl.GetConfigOrDie()

	leaderOpts, err := command.NewLeaderElectionOptions()
	if err != nil {
		setupLog.Error(err, "failed to parse leader election options")
		return err
	}

	bindAddresses := BindAddresses{
		Webhook:     ":8080",
		API:         ":8081",
		Metrics:     ":9090",
		HealthProbe: ":8082",
	}
	if d := os.Getenv("HEADWIND_WEBHOOK_BIND_ADDRESS"); d != "" {
		bindAddresses.Webhook = d
	}
	if d := os.Getenv("HEADWIND_API_BIND_ADDRESS"); d != "" {
		bindAddresses.API = d
	}
	if d := os.Getenv("HEADWIND_METRICS_BIND_ADDRESS"); d != "" {
		bindAddresses.Metrics = d
	}
	if d := os.Getenv("HEADWIND_HEALTHPROBE_BIND_ADDRESS"); d != "" {
		bindAddresses.HealthProbe = d
	}

	leaderElection, _ := strconv.ParseBool(os.Getenv("HEADWIND_LEADER_ELECTION_ENABLED"))

	setupCpuPprof(ctx)
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil)) // nolint:gosec // debugging only
	}()

	if err := start(ctx, r.Namespace, kubeconfig, leaderElection, leaderOpts, bindAddresses, r.DisableMetrics); err != nil {
		return err
	}

	<-cmd.Context().Done()
	return nil
}

func App() *cobra.Command {
	root := command.Command(&HeadwindController{}, cobra.Command{
		Use:   "headwind-controller",
		Short: "Runs the Headwind cluster-resident upgrade controller",
	})
	fs := flag.NewFlagSet("", flag.ExitOnError)
	zopts.BindFlags(fs)
	ctrl.RegisterFlags(fs)
	root.Flags().AddGoFlagSet(fs)
	return root
}

// setupCpuPprof starts a goroutine that captures a cpu pprof profile into
// HEADWIND_CPU_PPROF_DIR every HEADWIND_CPU_PPROF_PERIOD.
func setupCpuPprof(ctx context.Context) {
	if dir, ok := os.LookupEnv("HEADWIND_CPU_PPROF_DIR"); ok {
		go func() {
			var pprofCpuFile *os.File

			period := 10 * time.Minute
			if customPeriod, err := time.ParseDuration(os.Getenv("HEADWIND_CPU_PPROF_PERIOD")); err == nil {
				period = customPeriod
			}
			wait.UntilWithContext(ctx, func(ctx context.Context) {
				stopCpuPprof(pprofCpuFile)
				pprofCpuFile = startCpuPprof(dir)
			}, period)
		}()
	}
}

func stopCpuPprof(f *os.File) {
	pprof.StopCPUProfile()
	if f != nil {
		if err := f.Close(); err != nil {
			log.Println("could not close CPU profile file ", err)
		}
	}
}

func startCpuPprof(dir string) *os.File {
	name := time.Now().UTC().Format("2006-01-02_15_04_05") + ".pprof.headwindcontroller.samples.cpu.pb.gz"
	f, err := os.Create(path.Join(dir, name))
	if err != nil {
		log.Println("could not create CPU profile: ", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		log.Println("could not start CPU profile: ", err)
	}
	return f
}
