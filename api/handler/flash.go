package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/internal/service"
)

// Runner 操作入口，由 service.Operations 实现
type Runner interface {
	Scan(ctx context.Context, req service.ScanRequest) model.Result
	Copy(ctx context.Context, req service.CopyRequest) model.Result
	Boot(ctx context.Context, req service.BootRequest) model.Result
}

// TargetBody 设备连接参数
type TargetBody struct {
	Host           string  `json:"host" binding:"required"`
	Port           int     `json:"port"`
	Username       string  `json:"username"`
	Password       string  `json:"password"`
	EnablePassword string  `json:"enable_password"`
	Platform       string  `json:"platform" binding:"required"`
	SSHConfig      string  `json:"ssh_config"`
	Pacing         float64 `json:"pacing"`
}

func (b TargetBody) target() service.Target {
	return service.Target{
		Host:           strings.TrimSpace(b.Host),
		Port:           b.Port,
		Username:       b.Username,
		Password:       b.Password,
		EnablePassword: b.EnablePassword,
		Platform:       strings.TrimSpace(b.Platform),
		SSHConfig:      model.ParseOpt(b.SSHConfig),
		Pacing:         b.Pacing,
	}
}

// ScanBody POST /api/v1/flash/scan
type ScanBody struct {
	TargetBody
	Flash  string `json:"flash"`
	Search string `json:"search"`
	Log    bool   `json:"log"`
}

// CopyBody POST /api/v1/flash/copy
type CopyBody struct {
	TargetBody
	Direction  string `json:"direction" binding:"required"`
	LocalPath  string `json:"local_path"`
	SourceFile string `json:"source_file"`
	DevicePath string `json:"device_path"`
	DestFile   string `json:"dest_file"`
	FileSystem string `json:"file_system"`
	DisableMD5 bool   `json:"disable_md5"`
	Log        bool   `json:"log"`
}

// BootBody POST /api/v1/flash/boot
type BootBody struct {
	TargetBody
	Flash   string `json:"flash"`
	Image   string `json:"image"`
	BootCmd string `json:"boot_cmd"`
	// ChgLoader 可为 JSON 对象或其字符串形式
	ChgLoader json.RawMessage `json:"chg_loader"`
	Log       bool            `json:"log"`
}

// chgLoaderText 字符串形式去引号，对象形式原样返回
func chgLoaderText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// FlashHandler flash 操作接口
type FlashHandler struct {
	ops Runner
}

// NewFlashHandler 创建处理器
func NewFlashHandler(ops Runner) *FlashHandler {
	return &FlashHandler{ops: ops}
}

// Scan 处理 api/v1/flash/scan
func (h *FlashHandler) Scan(c *gin.Context) {
	var body ScanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res := h.ops.Scan(c.Request.Context(), service.ScanRequest{
		Target: body.target(),
		Flash:  body.Flash,
		Search: model.ParseSearchTarget(body.Search),
		Log:    body.Log,
	})
	respond(c, res)
}

// Copy 处理 api/v1/flash/copy
func (h *FlashHandler) Copy(c *gin.Context) {
	var body CopyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	spec := model.TransferSpec{
		Direction:             model.Direction(strings.ToLower(strings.TrimSpace(body.Direction))),
		LocalDir:              model.ParseOpt(body.LocalPath),
		SourceFile:            strings.TrimSpace(body.SourceFile),
		DeviceDir:             model.ParseOpt(body.DevicePath),
		DestFile:              model.ParseOpt(body.DestFile),
		FileSystem:            model.ParseOpt(body.FileSystem),
		DisableIntegrityCheck: body.DisableMD5,
		Log:                   body.Log,
	}
	respond(c, h.ops.Copy(c.Request.Context(), service.CopyRequest{Target: body.target(), Spec: spec}))
}

// Boot 处理 api/v1/flash/boot
func (h *FlashHandler) Boot(c *gin.Context) {
	var body BootBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	change, err := model.ResolveBootChange(body.Image, body.BootCmd, chgLoaderText(body.ChgLoader))
	if err != nil {
		badRequest(c, err)
		return
	}
	res := h.ops.Boot(c.Request.Context(), service.BootRequest{
		Target: body.target(),
		Flash:  body.Flash,
		Boot:   change,
		Log:    body.Log,
	})
	respond(c, res)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
}

// respond 操作失败返回 422，payload 始终带回
func respond(c *gin.Context, res model.Result) {
	status, code := http.StatusOK, "SUCCESS"
	if !res.Success {
		status, code = http.StatusUnprocessableEntity, "FAILED"
	}
	c.JSON(status, gin.H{
		"code":         code,
		"message":      res.Message,
		"operation_id": res.OperationID,
		"data":         res.Payload,
	})
}
