package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/junsooki/airmac-recorder/internal/config"
	"github.com/junsooki/airmac-recorder/internal/decoder"
	"github.com/junsooki/airmac-recorder/internal/display"
	"github.com/junsooki/airmac-recorder/internal/encoder"
	"github.com/junsooki/airmac-recorder/internal/peer"
	"github.com/junsooki/airmac-recorder/internal/recording"
	"github.com/junsooki/airmac-recorder/internal/signaling"
	"github.com/junsooki/airmac-recorder/internal/surface"
)

const (
	connectTimeout  = 10 * time.Second
	finalizeTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "airmac-controller",
		Short:        "View a remote AirMac host and record the session as an animated GIF",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), v, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "Config file (default: config.yaml in ., $HOME/.airmac or /etc/airmac)")
	f.String("signaling", config.DefaultSignalingURL, "Signaling server WebSocket URL")
	f.String("id", "", "Controller ID (auto-generated if empty)")
	f.String("host", "", "Host ID to connect to (required)")
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.String("record-dir", config.DefaultRecordingDir(), "Directory for saved recordings and screenshots")
	f.Bool("autostart", false, "Start recording when the first frame arrives")
	f.Duration("min-interval", config.DefaultMinInterval, "Minimum time between recorded frames")
	f.Int("max-width", 0, "Downscale recorded frames wider than this (0 keeps full size)")

	for key, flag := range map[string]string{
		"signaling":              "signaling",
		"id":                     "id",
		"host":                   "host",
		"log_level":              "log-level",
		"recording.dir":          "record-dir",
		"recording.autostart":    "autostart",
		"recording.min_interval": "min-interval",
		"recording.max_width":    "max-width",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}

func run(ctx context.Context, v *viper.Viper, cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"controller": cfg.ControllerID,
		"signaling":  cfg.SignalingURL,
		"host":       cfg.HostID,
	}).Info("AirMac controller starting")

	surf := surface.New()

	var settings atomic.Pointer[config.Recording]
	settings.Store(&cfg.Recording)
	newEncoder := func() encoder.AnimationEncoder {
		r := settings.Load()
		return encoder.NewGIFEncoder(encoder.GIFOptions{
			MaxWidth:  r.MaxWidth,
			Dither:    r.Dither,
			FinalHold: r.FinalHold,
		}, log)
	}

	store := recording.NewStore(nil, cfg.Recording.Dir)
	log.WithField("dir", store.Dir()).Info("recordings will be saved here")

	rec := recording.NewRecorder(surf, newEncoder, store, sessionOptions(cfg.Recording, log))
	rec.OnSaved(func(path string, err error) { report("recording", path, err, log) })

	if v.ConfigFileUsed() != "" {
		config.Watch(v, log, func(c *config.Config) {
			settings.Store(&c.Recording)
			rec.SetOptions(sessionOptions(c.Recording, log))
		})
	}

	if cfg.Recording.Autostart {
		var started atomic.Bool
		surf.OnSync(func(time.Duration) {
			if !started.CompareAndSwap(false, true) {
				return
			}
			if err := rec.Start(); err != nil {
				log.WithError(err).Error("autostart recording")
			}
		})
	}

	var ctrlPeer atomic.Pointer[peer.Controller]

	disp := display.NewEbitenDisplay(surf, "AirMac Controller", func(eventJSON []byte) {
		if p := ctrlPeer.Load(); p != nil {
			_ = p.Transport().SendInput(eventJSON)
		}
	}, display.RecordControls{
		Toggle: func() { rec.Toggle(context.Background()) },
		Screenshot: func() {
			go func() {
				path, err := rec.Screenshot()
				report("screenshot", path, err, log)
			}()
		},
		Recording: rec.Recording,
	})
	disp.StopOn(ctx.Done())

	forward := decoder.Forward(decoder.NewJPEGDecoder(), surf, log)

	var sig *signaling.Client
	sig = signaling.NewClient(cfg.SignalingURL, cfg.ControllerID, signaling.Handler{
		OnRegistered: func() {
			log.Info("registered with signaling server")
			p, err := peer.NewController(sig, cfg.HostID, cfg.ICEServers, log)
			if err != nil {
				log.WithError(err).Error("create controller peer")
				return
			}
			p.Transport().OnFrame(forward)
			ctrlPeer.Store(p)
			if err := p.Connect(); err != nil {
				log.WithError(err).Error("controller connect")
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if p := ctrlPeer.Load(); p != nil {
				if err := p.HandleAnswer(payload); err != nil {
					log.WithError(err).Warn("handle answer")
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if p := ctrlPeer.Load(); p != nil {
				if err := p.HandleICECandidate(payload); err != nil {
					log.WithError(err).Warn("handle ICE candidate")
				}
			}
		},
		OnHostDisconnected: func(hostID string) {
			if hostID != cfg.HostID {
				return
			}
			log.WithField("host", hostID).Warn("host disconnected")
			if rec.Recording() {
				go finishRecording(rec, log)
			}
		},
		OnError: func(msg string) {
			log.WithField("message", msg).Error("signaling error")
		},
	}, log)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sig.Connect(connectCtx); err != nil {
		return err
	}
	defer sig.Close()

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	runErr := disp.Run()

	if rec.Recording() {
		finishRecording(rec, log)
	}
	if p := ctrlPeer.Load(); p != nil {
		p.Close()
	}
	return errors.Wrap(runErr, "display")
}

func sessionOptions(r config.Recording, log logrus.FieldLogger) recording.Options {
	return recording.Options{
		MinInterval: r.MinInterval,
		Logger:      log,
	}
}

func finishRecording(rec *recording.Recorder, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	path, err := rec.Stop(ctx)
	if errors.Is(err, recording.ErrNotRecording) {
		return
	}
	report("recording", path, err, log)
}

func report(what, path string, err error, log logrus.FieldLogger) {
	if err != nil {
		log.WithError(err).Errorf("save %s", what)
		return
	}
	fmt.Fprintln(os.Stderr, color.GreenString("Saved %s: %s", what, path))
}
