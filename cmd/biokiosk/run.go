package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudu/biokiosk/internal/camera"
	"github.com/dudu/biokiosk/internal/capture"
	"github.com/dudu/biokiosk/internal/config"
	"github.com/dudu/biokiosk/internal/detector"
	"github.com/dudu/biokiosk/internal/inference"
	"github.com/dudu/biokiosk/internal/logging"
	"github.com/dudu/biokiosk/internal/overlay"
	"github.com/dudu/biokiosk/internal/pipeline"
	"github.com/dudu/biokiosk/internal/segmenter"
	"github.com/dudu/biokiosk/internal/sink"
	"github.com/dudu/biokiosk/internal/ui"
)

// windowHeight is the on-screen height of the portrait canvas
const windowHeight = 960

// errQuit ends the kiosk from the keyboard
var errQuit = errors.New("quit requested")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the kiosk: load models, open the camera and take passes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKiosk(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().IntP("camera", "c", 0, "Camera device index")
	runCmd.Flags().StringP("still", "i", "", "Use a still image instead of the camera")
	runCmd.Flags().StringP("style", "s", "", "Eyewear style: NONE, CYBER, CLASSIC, AVIATOR, RETRO or MONOCLE")
	runCmd.Flags().IntP("countdown", "n", 0, "Countdown length in seconds")
	runCmd.Flags().Float64("fps", 0, "Preview frame rate")
	runCmd.Flags().StringP("output", "o", "", "Directory for captured passes")
	runCmd.Flags().String("assets", "", "Directory with <style>.png eyewear images")
	runCmd.Flags().Int("sessions", 0, "Number of passes to take before exiting (0 runs forever)")
	runCmd.Flags().Bool("headless", false, "Run without a window")
	rootCmd.AddCommand(runCmd)
}

// kiosk holds what one run shares between sessions
type kiosk struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	consumer capture.Consumer
	window   *ui.Window
	style    atomic.Int32
	quit     atomic.Bool
}

func runKiosk(ctx context.Context, c config.Config) error {
	if err := inference.Initialize(inference.Options{
		LibraryPath: c.OnnxLibrary,
		Provider:    inference.Provider(c.Provider),
	}); err != nil {
		return err
	}
	defer inference.Shutdown()

	consumer, err := buildConsumer(c)
	if err != nil {
		return err
	}

	k := &kiosk{cfg: c, consumer: consumer}
	k.style.Store(int32(c.OverlayStyle()))
	k.pipeline = pipeline.New(pipeline.Config{
		Width:  c.CanvasWidth,
		Height: c.CanvasHeight,
		Style:  func() overlay.Style { return overlay.Style(k.style.Load()) },
	})
	defer k.pipeline.Close()

	if !c.Headless {
		logs := ui.NewLogRing(ui.DefaultLogLines)
		logging.AddHook(logs)
		k.window = ui.NewWindow("BioKiosk", windowHeight, logs)
		defer k.window.Close()
	}

	if err := k.load(ctx); err != nil {
		return err
	}

	return runSessions(ctx, c.Sessions, k.quit.Load, k.session, k.hold)
}

// runSessions takes passes until limit is reached (0 runs forever), the
// context ends or quit reports true. A pass the consumers failed to accept
// is still shown; only a session that produced nothing ends the run.
func runSessions(
	ctx context.Context,
	limit int,
	quit func() bool,
	session func(context.Context) (*capture.Artifact, error),
	hold func(context.Context, *capture.Artifact) error,
) error {
	for n := 0; limit == 0 || n < limit; n++ {
		a, err := session(ctx)
		if quit() || ctx.Err() != nil {
			logging.Info(nil, "[kiosk] shutting down")
			return nil
		}
		if err != nil {
			if a == nil || !errors.Is(err, capture.ErrHandOff) {
				return err
			}
			logging.Error(logging.Fields{
				"artifact": a.ID().String(),
				"error":    err.Error(),
			}, "[kiosk] pass not delivered")
		}
		if err := hold(ctx, a); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
	return nil
}

// load runs start-up in the background while the window shows progress
func (k *kiosk) load(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- k.pipeline.Load(ctx, loaders(k.cfg))
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if k.window == nil {
				continue
			}
			s := k.pipeline.Stage()
			k.window.ShowStatus(s.String(), s.Progress())
			k.window.WaitKey(1)
		}
	}
}

// session runs one countdown and returns the capture
func (k *kiosk) session(ctx context.Context) (*capture.Artifact, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var progress io.Writer
	var status func() string
	if k.window == nil {
		progress = os.Stderr
		status = func() string { return k.pipeline.LastTiming().String() }
	}

	var s *capture.Session
	s = capture.NewSession(k.pipeline, k.consumer, capture.Options{
		Seconds:  k.cfg.Countdown,
		FPS:      k.cfg.FPS,
		Progress: progress,
		Status:   status,
		OnFrame: func() {
			if k.window == nil {
				return
			}
			err := k.window.ShowCanvas(k.pipeline.Live(), ui.HUD{
				Countdown:    s.Countdown().Remaining(),
				Style:        overlay.Style(k.style.Load()).String(),
				Segmentation: k.pipeline.Segmentation().String(),
				Timing:       k.pipeline.LastTiming().String(),
			})
			if err != nil {
				logging.Debug(logging.Fields{"error": err.Error()}, "[kiosk] failed to show canvas")
			}
			if k.handleKey(k.window.WaitKey(1)) {
				cancel()
			}
		},
	})
	return s.Run(ctx)
}

// hold shows the pass until ResultHold elapses or a key is pressed
func (k *kiosk) hold(ctx context.Context, a *capture.Artifact) error {
	caption := fmt.Sprintf("PASS %s SAVED", a.ID().String()[:8])
	if k.window == nil {
		select {
		case <-ctx.Done():
		case <-time.After(k.cfg.ResultHold):
		}
		return nil
	}

	if err := k.window.ShowImage(a.Image(), caption); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "[kiosk] failed to show pass")
	}
	deadline := time.Now().Add(k.cfg.ResultHold)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		key := k.window.WaitKey(50)
		if k.handleKey(key) {
			return errQuit
		}
		if key != ui.KeyNone {
			return nil
		}
	}
	return nil
}

// handleKey switches styles and reports whether the key quits
func (k *kiosk) handleKey(key int) bool {
	if key == ui.KeyQuit || key == ui.KeyEscape {
		k.quit.Store(true)
		return true
	}
	if s, ok := styleForKey(key); ok {
		k.style.Store(int32(s))
		logging.Info(logging.Fields{"style": s.String()}, "[kiosk] style selected")
	}
	return false
}

// styleForKey maps '0' to no eyewear and '1' onwards to the style menu
func styleForKey(key int) (overlay.Style, bool) {
	if key == '0' {
		return overlay.StyleNone, true
	}
	styles := overlay.Styles()
	i := key - '1'
	if i < 0 || i >= len(styles) {
		return overlay.StyleNone, false
	}
	return styles[i], true
}

func loaders(c config.Config) pipeline.Loaders {
	l := pipeline.Loaders{
		Assets: func(context.Context) (*overlay.Library, error) {
			lib := overlay.NewLibrary()
			loaded, err := lib.LoadAssets(c.AssetsDir)
			if err != nil {
				return nil, err
			}
			logging.Info(logging.Fields{"dir": c.AssetsDir, "images": len(loaded)}, "[kiosk] overlay assets resolved")
			return lib, nil
		},
		Landmarks: func(context.Context) (pipeline.LandmarkDetector, error) {
			mc := detector.DefaultMeshConfig()
			mc.ModelPath = c.MeshModel
			mc.DetectorPath = c.FaceDetectorModel
			mesh, err := detector.NewFaceMesh(mc)
			if err != nil {
				return nil, err
			}
			return mesh, nil
		},
		Camera: func(context.Context) (pipeline.FrameSource, error) {
			if c.StillImage != "" {
				still, err := camera.NewStill(c.StillImage)
				if err != nil {
					return nil, err
				}
				return still, nil
			}
			cam, err := camera.NewCaptureWithResolution(c.CameraID, int(c.FPS), c.CameraWidth, c.CameraHeight)
			if err != nil {
				return nil, err
			}
			logging.Info(logging.Fields{"camera": c.CameraID, "width": cam.Width(), "height": cam.Height()}, "[kiosk] camera opened")
			return cam, nil
		},
	}
	if c.BodyModel != "" {
		l.BodySegmenter = segmenterLoader(segmenter.BodyConfig(c.BodyModel))
	}
	if c.HairModel != "" {
		l.HairSegmenter = segmenterLoader(segmenter.HairConfig(c.HairModel))
	}
	return l
}

func segmenterLoader(sc segmenter.Config) func(context.Context) (pipeline.Segmenter, error) {
	return func(context.Context) (pipeline.Segmenter, error) {
		seg, err := segmenter.New(sc)
		if err != nil {
			return nil, err
		}
		return seg, nil
	}
}

// buildConsumer writes passes to disk and, when a bucket is set, to S3
func buildConsumer(c config.Config) (capture.Consumer, error) {
	files, err := sink.NewFileSink(c.OutputDir, c.Thumbnail)
	if err != nil {
		return nil, err
	}
	consumers := sink.Multi{files}

	if c.S3Bucket != "" {
		s3, err := sink.NewS3Sink(sink.S3Config{
			Region: c.S3Region,
			Bucket: c.S3Bucket,
			Prefix: c.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, s3)
	}
	return consumers, nil
}
