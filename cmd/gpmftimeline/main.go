// Command gpmftimeline extracts the GPMF track from an MP4 file's udta
// atom, assembles it into a Timeline, runs stabilization fusion over the
// CORI/IORI/GRAV orientation samples, and prints the assembled samples as
// the JSON document described in the GPMF JSON export format.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tetsuo/gpmf"
	"github.com/tetsuo/gpmf/gpmfjson"
	"github.com/tetsuo/gpmf/provider"
	"github.com/tetsuo/gpmf/stabilize"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional YAML config (device name overrides, default mode)")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
		modeFlag    = flag.String("mode", "", "stabilization mode: off, antishake, worldlock, horizonlevel, allon")
		keysFlag    = flag.String("keys", "", "comma-separated FourCC keys to export (default: every key seen)")
		outPath     = flag.String("out", "", "write JSON export here instead of stdout")
		minimal     = flag.Bool("minimal", false, "drop descriptor fields from the JSON export")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <mp4-file>\n", os.Args[0])
		os.Exit(2)
	}
	path := flag.Arg(0)

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	mode, err := resolveMode(*modeFlag, cfg.DefaultMode)
	if err != nil {
		logger.Fatal("resolve mode", zap.Error(err))
	}

	var recorder *promRecorder
	if *metricsAddr != "" {
		recorder = newPromRecorder()
		errc := make(chan error, 1)
		go serveMetrics(*metricsAddr, errc)
		go func() {
			if err := <-errc; err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", *metricsAddr))
	}

	p := provider.NewUDTA()
	if err := p.OpenUDTA(path); err != nil {
		logger.Fatal("open udta", zap.String("path", path), zap.Error(err))
	}
	defer p.Close()

	tl := gpmf.NewTimeline()
	opts := gpmf.AssembleOptions{Logger: logger}
	if recorder != nil {
		opts.Recorder = recorder
	}
	if err := tl.AssembleWithOptions(p, nil, nil, opts); err != nil {
		logger.Fatal("assemble timeline", zap.Error(err))
	}

	frames, status := stabilize.ExtractFrames(tl, p, path)
	if status == stabilize.StatusOK {
		cache := &stabilize.StrategyCache{}
		quats, fstatus := stabilize.Fuse(frames, mode, true, 0, len(frames), cache)
		logger.Info("stabilization fused",
			zap.String("mode", modeName(mode)),
			zap.Int("frames", len(frames)),
			zap.Int("quaternions", len(quats)),
			zap.Bool("ok", fstatus == stabilize.StatusOK),
		)
	} else {
		logger.Warn("orientation frames not usable for stabilization, skipping it", zap.Int("status", int(status)))
	}

	for id, name := range cfg.DeviceNames {
		logger.Debug("device name override configured", zap.String("deviceID", id), zap.String("name", name))
	}

	var keys []gpmf.FourCC
	if *keysFlag != "" {
		for _, k := range strings.Split(*keysFlag, ",") {
			k = strings.TrimSpace(k)
			if len(k) == 4 {
				keys = append(keys, gpmf.FourCC{k[0], k[1], k[2], k[3]})
			}
		}
	}

	out, err := gpmfjson.Export(tl, keys, gpmfjson.Options{Minimal: *minimal})
	if err != nil {
		logger.Fatal("export json", zap.Error(err))
	}

	if *outPath == "" {
		os.Stdout.Write(out)
		os.Stdout.WriteString("\n")
		return
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		logger.Fatal("write output", zap.String("path", *outPath), zap.Error(err))
	}
}

func resolveMode(flagVal, configVal string) (stabilize.Mode, error) {
	v := flagVal
	if v == "" {
		v = configVal
	}
	switch strings.ToLower(v) {
	case "", "antishake":
		return stabilize.ModeAntiShake, nil
	case "off":
		return stabilize.ModeAllOff, nil
	case "worldlock":
		return stabilize.ModeWorldLock, nil
	case "horizonlevel":
		return stabilize.ModeHorizonLevel, nil
	case "allon":
		return stabilize.ModeAllOn, nil
	default:
		return 0, fmt.Errorf("unknown stabilization mode %q", v)
	}
}

func modeName(m stabilize.Mode) string {
	switch m {
	case stabilize.ModeAllOff:
		return "off"
	case stabilize.ModeAntiShake:
		return "antishake"
	case stabilize.ModeWorldLock:
		return "worldlock"
	case stabilize.ModeHorizonLevel:
		return "horizonlevel"
	case stabilize.ModeAllOn:
		return "allon"
	default:
		return "unknown"
	}
}
