package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/common/logs"
	"github.com/craterbuild/crater/src/craterd/build"
)

// workerCmd runs one worker build: the remote end of the dispatch protocol.
// The coordinating node starts this over SSH with the build input document
// on stdin and parses the last stdout line as the result.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one worker build from stdin",
	Long: `worker reads a JSON build input document on stdin, runs the worker-side
plugin pipeline for it and writes the serialized result as the last line of
stdout. SIGTERM requests cooperative cancellation; the plugin that is
currently running finishes first.

The build outcome is carried in the result document, not the exit code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().String("build-id", "", "Build identity (defaults to a random UUID)")
	workerCmd.Flags().String("engine-command", "", "Shell command that performs the image build")

	_ = viper.BindPFlag("worker.build_id", workerCmd.Flags().Lookup("build-id"))
	_ = viper.BindPFlag("worker.engine_command", workerCmd.Flags().Lookup("engine-command"))

	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	// Stdout belongs to the result protocol; all logging goes to stderr
	log = logs.New(logs.Config{
		Output: logs.OutputStderr,
		Level:  viper.GetString("log.level"),
		Prefix: "craterd",
	})
	build.SetLogger(log)

	buildID := viper.GetString("worker.build_id")
	if buildID == "" {
		buildID = uuid.NewString()
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading build input: %w", err)
	}

	registry := build.NewRegistry()
	registry.Register(&build.TagFromConfigPlugin{})
	registry.Register(&build.WorkerBuildPlugin{
		Builder: &engineBuilder{command: viper.GetString("worker.engine_command")},
	})

	pipeline := build.PipelineConf{
		build.PhasePreBuild:  {{Name: "tag_from_config"}},
		build.PhaseBuildstep: {{Name: "worker_build"}},
	}

	standalone, err := build.NewStandaloneBuild(buildID, input, registry, pipeline)
	if err != nil {
		return err
	}

	// The coordinator cancels a worker by signaling the remote command
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Info("Received signal, cancelling build", "signal", sig, "build_id", buildID)
		standalone.Cancel()
	}()

	log.Info("Worker build starting", "build_id", buildID)
	result := standalone.Run(context.Background())
	signal.Stop(sigCh)

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("serializing worker result: %w", err)
	}
	fmt.Println(string(out))

	log.Info("Worker build finished", "build_id", buildID, "status", result.Status)
	return nil
}

// engineBuilder performs the image build by shelling out to a configured
// engine command. The build context arrives through the environment; the
// engine's stdout and stderr are captured into the plugin result so they
// travel back inside the workflow document.
type engineBuilder struct {
	command string
}

func (b *engineBuilder) Build(ctx context.Context, w *build.Workflow) (interface{}, error) {
	if b.command == "" {
		return nil, errors.ErrPluginFailed.WithMessage(
			"no build engine configured, set worker.engine_command")
	}

	platform := ""
	if len(w.Params.Platforms) > 0 {
		platform = w.Params.Platforms[0]
	}
	tags := w.TagConf.All()

	cmd := exec.CommandContext(ctx, "sh", "-c", b.command)
	cmd.Env = append(os.Environ(),
		"CRATER_BUILD_ID="+w.BuildID,
		"CRATER_SOURCE_URI="+w.Params.Source.URI,
		"CRATER_SOURCE_REF="+w.Params.Source.Ref,
		"CRATER_PLATFORM="+platform,
		"CRATER_TAGS="+strings.Join(tags, ","),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.ErrPluginFailed.WithMessagef(
			"engine command failed: %s", tail(string(out), 1024)).WithCause(err)
	}

	return map[string]interface{}{
		"platform": platform,
		"tags":     tags,
		"output":   tail(string(out), 4096),
	}, nil
}

// tail returns at most n trailing bytes of s
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
