package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/machug/woofalytics-v2-sub000/internal/classify"
	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/daemon"
	"github.com/machug/woofalytics-v2-sub000/internal/evidence"
	"github.com/machug/woofalytics-v2-sub000/internal/fingerprint"
	"github.com/machug/woofalytics-v2-sub000/internal/ipc"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
	"github.com/machug/woofalytics-v2-sub000/internal/pipeline"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	hub := logging.NewStreamHub(1024)
	logger, closeLogger, err := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		LogDir:    cfg.LogDir,
		StreamHub: hub,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer closeLogger() //nolint:errcheck

	archive, err := logging.NewEventArchive(filepath.Join(cfg.LogDir, "events.jsonl"))
	if err != nil {
		logger.Error("open event archive", logging.Error(err))
	}
	if archive != nil {
		defer archive.Close()
	}

	models, err := buildModels(cfg)
	if err != nil {
		logger.Error("build inference models", logging.Error(err))
	}
	defer closeModels(models)

	device := evidence.DeviceInfo{
		MicrophoneName: cfg.Audio.DeviceName,
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
	}

	supervisor, err := pipeline.New(cfg, models, device, logger)
	if err != nil {
		log.Fatalf("construct pipeline: %v", err)
	}

	d, err := daemon.New(cfg, supervisor, logger, filepath.Join(cfg.LogDir, "barkd.jsonl"), hub, archive, cfg.ONNXLibraryPath)
	if err != nil {
		log.Fatalf("construct daemon: %v", err)
	}
	defer d.Close()

	evidenceIndex, err := evidence.OpenIndex(cfg.Evidence.Directory)
	if err != nil {
		log.Fatalf("open evidence index: %v", err)
	}
	defer evidenceIndex.Close()

	handler := &daemonHandler{daemon: d, evidenceIndex: evidenceIndex, hub: hub}
	ipcServer, err := ipc.NewServer(cfg.SocketPath, handler, logger)
	if err != nil {
		log.Fatalf("start control socket: %v", err)
	}
	defer ipcServer.Close()

	go func() {
		if err := ipcServer.Serve(ctx); err != nil {
			logger.Error("control socket exited",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_server_exit"),
			)
		}
	}()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		cancel()
	}

	<-ctx.Done()
	logger.Info("barkd shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop(context.Background())
}

// buildModels loads the ONNX-backed classifiers and the file-backed
// fingerprint catalog. Load errors are not returned; a model that fails to
// load is left nil. A nil coarse model is non-fatal: the coarse classifier
// fails open. A nil fine model makes pipeline.New return an error (unless
// coarse.fallback_only_mode is set), so barkd exits at startup.
func buildModels(cfg *config.Config) (pipeline.Models, error) {
	var models pipeline.Models

	if cfg.Coarse.ModelPath != "" {
		classMap := loadClassMap(cfg.Coarse.ModelPath)
		coarse, err := classify.NewONNXCoarseModel(cfg.ONNXLibraryPath, cfg.Coarse.ModelPath, cfg.Audio.ChunkSamples, classMap)
		if err == nil {
			models.Coarse = coarse
		}
	}

	if !cfg.Coarse.FallbackOnlyMode && cfg.Fine.TextModelPath != "" && cfg.Fine.AudioModelPath != "" {
		const tokenWidth = 77
		const audioSamples = 16000
		const embedDim = 512
		fine, err := classify.NewONNXFineModel(
			cfg.ONNXLibraryPath, cfg.Fine.TextModelPath, cfg.Fine.AudioModelPath,
			tokenWidth, audioSamples, embedDim, hashTokenize,
		)
		if err == nil {
			models.Fine = fine
		}
	}

	catalogPath := filepath.Join(cfg.Evidence.Directory, "dog_catalog.json")
	catalog, err := fingerprint.NewFileCatalog(catalogPath)
	if err == nil {
		models.Fingerprint = catalog
	}

	return models, nil
}

func closeModels(models pipeline.Models) {
	if models.Coarse != nil {
		_ = models.Coarse.Close()
	}
	if models.Fine != nil {
		_ = models.Fine.Close()
	}
}

// loadClassMap reads <modelPath minus extension>.labels.json, a flat
// {"label": index} map exported alongside the ONNX graph. A missing or
// unreadable sidecar yields an empty map, which degrades the coarse
// classifier to always fail open at load time.
func loadClassMap(modelPath string) map[string]int {
	path := modelPath[:len(modelPath)-len(filepath.Ext(modelPath))] + ".labels.json"
	classMap, err := classify.LoadClassMap(path)
	if err != nil {
		return map[string]int{}
	}
	return classMap
}

// hashTokenize is a placeholder text tokenizer: it folds each label's bytes
// into a fixed-width feature vector by position-weighted hashing. Real
// deployments supply a tokenizer matched to the exported text tower;
// wiring that in is a cmd/barkd concern, not classify's.
func hashTokenize(label string) []float32 {
	const width = 77
	out := make([]float32, width)
	for i, r := range label {
		idx := i % width
		out[idx] += float32(r%97) / 97.0
	}
	return out
}
