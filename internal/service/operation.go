package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/pkg/logger"
)

// Target 设备连接参数，所有操作共用
type Target struct {
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	Username       string          `json:"username"`
	Password       string          `json:"-"`
	EnablePassword string          `json:"-"`
	Platform       string          `json:"platform"`
	SSHConfig      model.OptString `json:"ssh_config"`
	Pacing         float64         `json:"pacing"`
}

func (t Target) params() ConnectParams {
	return ConnectParams{
		Platform:       t.Platform,
		Address:        t.Host,
		Port:           t.Port,
		User:           t.Username,
		Password:       t.Password,
		EnablePassword: t.EnablePassword,
		Pacing:         t.Pacing,
		Profile:        t.SSHConfig,
	}
}

// ScanRequest flash 扫描
type ScanRequest struct {
	Target
	Flash  string
	Search model.SearchTarget
	Log    bool
}

// CopyRequest 文件传输
type CopyRequest struct {
	Target
	Spec model.TransferSpec
}

// BootRequest boot 修改
type BootRequest struct {
	Target
	Flash string
	Boot  model.BootChangeRequest
	Log   bool
}

// Operations 面向前端的操作入口；每次操作独立的会话、日志出口与审计记录
type Operations struct {
	// cfg 可被热加载替换，操作开始时取一次快照，之后只读
	cfg     atomic.Pointer[config.Config]
	audit   *Audit
	archive Archiver
}

// NewOperations 创建操作入口，audit 与 archive 可为 nil
func NewOperations(cfg *config.Config, audit *Audit, archive Archiver) *Operations {
	o := &Operations{audit: audit, archive: archive}
	o.Reload(cfg)
	return o
}

// Config 当前生效的配置，调用方不得修改
func (o *Operations) Config() *config.Config {
	return o.cfg.Load()
}

// Reload 替换配置，只影响之后开始的操作
func (o *Operations) Reload(cfg *config.Config) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	o.cfg.Store(cfg)
}

type operation struct {
	id       string
	kind     string
	target   Target
	started  time.Time
	cfg      *config.Config
	sessions *SessionManager
	sink     *logger.Sink
	log      *logrus.Entry
}

func sinkConfig(cfg *config.Config, file bool) logger.SinkConfig {
	return logger.SinkConfig{
		Enabled:  file,
		Dir:      cfg.Operation.LogDir,
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Location: cfg.Location(),
	}
}

func (o *Operations) begin(kind string, t Target, logFile bool) *operation {
	cfg := o.Config()
	op := &operation{
		id:       uuid.NewString(),
		kind:     kind,
		target:   t,
		started:  time.Now(),
		cfg:      cfg,
		sessions: NewSessionManager(cfg),
	}
	fields := logrus.Fields{"operation_id": op.id, "operation": kind, "device": t.Host}

	sink, err := logger.NewSink(sinkConfig(cfg, logFile), fields)
	if err != nil {
		logger.Warnf("Operation log file unavailable, using process log: %v", err)
		sink, _ = logger.NewSink(sinkConfig(cfg, false), fields)
	}
	op.sink = sink
	op.log = sink.Entry()
	op.log.WithField("platform", t.Platform).Info("Operation started")
	return op
}

func (o *Operations) finish(op *operation, res model.Result) model.Result {
	res.OperationID = op.id
	elapsed := time.Since(op.started)
	op.log.WithFields(logrus.Fields{"success": res.Success, "elapsed": elapsed.Round(time.Millisecond).String()}).Info(res.Message)

	rec := &model.OperationRecord{
		ID:        op.id,
		Operation: op.kind,
		Device:    op.target.Host,
		Platform:  op.target.Platform,
		Success:   res.Success,
		Message:   res.Message,
		Payload:   payloadText(res.Payload),
		LogFile:   op.sink.Path(),
		StartedAt: op.started,
		Duration:  elapsed.Milliseconds(),
	}
	if err := o.audit.Record(rec); err != nil {
		op.log.WithError(err).Warn("Audit record failed")
	}
	_ = op.sink.Close()
	return res
}

func (op *operation) flashID(flash string) string {
	if f := strings.TrimSpace(flash); f != "" {
		return f
	}
	if fs := strings.TrimSpace(op.cfg.Operation.DefaultFileSystem); fs != "" {
		return fs
	}
	return DefaultFileSystem
}

// Scan 扫描 flash 并搜索文件
func (o *Operations) Scan(ctx context.Context, req ScanRequest) model.Result {
	op := o.begin(model.OperationScan, req.Target, req.Log)
	flash := op.flashID(req.Flash)

	res, connected := op.sessions.WithSession(ctx, req.params(), op.log, func(ctx context.Context, s DeviceSession) (interface{}, bool, string) {
		report, msg, ok := ListFlash(ctx, s, flash, req.Search)
		return report, ok, msg
	})
	if !connected {
		res.Message = msgScanFailed + res.Message
	}
	return o.finish(op, res)
}

// Copy 带安全检查的文件传输；未指定源文件时不连接设备
func (o *Operations) Copy(ctx context.Context, req CopyRequest) model.Result {
	spec := req.Spec
	op := o.begin(model.OperationCopy, req.Target, spec.Log)
	if !spec.FileSystem.IsSome() {
		spec.FileSystem = model.Some(op.flashID(""))
	}
	idle := func() *model.TransferReport {
		return &model.TransferReport{Device: req.Host, Integrity: model.IntegritySkipped, ResolvedTransfer: ResolveTransfer(spec)}
	}

	if strings.TrimSpace(spec.SourceFile) == "" {
		return o.finish(op, model.Result{Success: true, Message: msgNoFile, Payload: idle()})
	}
	if _, err := model.ParseDirection(string(spec.Direction)); err != nil {
		return o.finish(op, model.Result{Success: false, Message: msgTransferCallFail + err.Error(), Payload: idle()})
	}

	var report *model.TransferReport
	res, connected := op.sessions.WithSession(ctx, req.params(), op.log, func(ctx context.Context, s DeviceSession) (interface{}, bool, string) {
		r, ok, msg := Transfer(ctx, s, spec)
		report = r
		return r, ok, msg
	})
	if !connected {
		res.Message = msgTransferCallFail + res.Message
		res.Payload = idle()
		return o.finish(op, res)
	}
	if err := safetyCheck(report, res.Success); err != nil {
		op.log.WithError(err).Warn("Transfer blocked")
	}

	if o.archive != nil && report != nil && report.FileTransferred && spec.Direction == model.DirectionGet {
		uri, err := o.archive.Archive(ctx, req.Host, report.DestPath)
		if err != nil {
			op.log.WithError(err).Warn("Archive upload failed")
		} else {
			report.ArchiveURI = uri
			op.log.WithField("uri", uri).Info("File archived")
		}
	}
	return o.finish(op, res)
}

// Boot 修改或清空 boot system；修改前先确认镜像存在
func (o *Operations) Boot(ctx context.Context, req BootRequest) model.Result {
	op := o.begin(model.OperationBoot, req.Target, req.Log)
	target := req.Boot.Target
	report := &model.BootChangeReport{Device: req.Host, Loader: msgBootLoaderKept}
	reply := func(ok bool, msg string) model.Result {
		report.Success = ok
		report.Message = msg
		return model.Result{Success: ok, Message: msg, Payload: report}
	}

	switch {
	case target.Kind == model.BootNoChange:
		return o.finish(op, reply(true, msgBootNoChange))
	case target.Kind == model.BootImage && !SupportsBootChange(op.cfg, req.Platform):
		return o.finish(op, reply(false, unsupportedMessage(req.Platform)))
	}

	flash := op.flashID(req.Flash)
	res, connected := op.sessions.WithSession(ctx, req.params(), op.log, func(ctx context.Context, s DeviceSession) (interface{}, bool, string) {
		if target.Kind == model.BootImage {
			scan, msg, ok := ListFlash(ctx, s, flash, model.SearchFor(target.Image))
			if !ok {
				r := reply(false, msgBootScanFailed+msg)
				return r.Payload, false, r.Message
			}
			if !scan.Search.Found {
				r := reply(false, msgBootImageMissing)
				return r.Payload, false, r.Message
			}
		}
		msg, ok, r := ChangeBoot(ctx, s, req.Platform, target, req.Boot.Template)
		return r, ok, msg
	})
	if !connected {
		return o.finish(op, reply(false, res.Message))
	}
	return o.finish(op, res)
}
