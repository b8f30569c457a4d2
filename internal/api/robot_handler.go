package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
	"github.com/taoyao-code/meccanoid-ctl/internal/sequencer"
)

// RobotHandler 机器人控制API处理器
type RobotHandler struct {
	session *robot.Session
	logger  *zap.Logger
}

// NewRobotHandler 创建控制API处理器
func NewRobotHandler(session *robot.Session, logger *zap.Logger) *RobotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotHandler{session: session, logger: logger}
}

// GetState 当前状态快照
// @Summary 查询机器人状态
// @Tags 机器人
// @Produce json
// @Router /api/robot/state [get]
func (h *RobotHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// GetStatus 当前或最近一次执行
// @Summary 查询动作执行状态
// @Tags 机器人
// @Produce json
// @Router /api/robot/status [get]
func (h *RobotHandler) GetStatus(c *gin.Context) {
	r, ok := h.session.Status()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"execution": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution": r})
}

// ListPoses 姿态目录
func (h *RobotHandler) ListPoses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"poses": h.session.Library().PoseNames()})
}

// ListAnimations 动画目录
func (h *RobotHandler) ListAnimations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"animations": h.session.Library().AnimationNames()})
}

// ExecutePose 执行姿态
// @Summary 执行命名姿态
// @Description 默认阻塞到保持时间结束；wait=false 时异步执行返回202；nonblocking=true 时帧发出即返回
// @Tags 机器人
// @Param name path string true "姿态名称"
// @Param wait query bool false "是否等待完成(默认true)"
// @Param nonblocking query bool false "不等待保持时间"
// @Router /api/robot/poses/{name} [post]
func (h *RobotHandler) ExecutePose(c *gin.Context) {
	name := c.Param("name")
	opts := sequencer.Options{NonBlocking: queryBool(c, "nonblocking", false)}

	if !queryBool(c, "wait", true) {
		res, err := h.session.SubmitPose(name, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, res)
		return
	}

	res, err := h.session.ExecutePose(c.Request.Context(), name, opts)
	if err != nil {
		h.logger.Warn("execute pose failed", zap.String("pose", name), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ExecuteAnimation 执行动画
// @Summary 执行命名动画
// @Description 默认异步执行返回202与执行ID；wait=true 时阻塞到结束
// @Tags 机器人
// @Param name path string true "动画名称"
// @Param wait query bool false "是否等待完成(默认false)"
// @Router /api/robot/animations/{name} [post]
func (h *RobotHandler) ExecuteAnimation(c *gin.Context) {
	name := c.Param("name")

	if queryBool(c, "wait", false) {
		res, err := h.session.ExecuteAnimation(c.Request.Context(), name)
		if err != nil {
			h.logger.Warn("execute animation failed", zap.String("animation", name), zap.Error(err))
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	res, err := h.session.SubmitAnimation(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// Cancel 协作式取消
func (h *RobotHandler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.session.Cancel()})
}

// EyesRequest 眼睛颜色：颜色名或 RGB（0-7）
type EyesRequest struct {
	Color string `json:"color"`
	R     *int   `json:"r"`
	G     *int   `json:"g"`
	B     *int   `json:"b"`
}

// SetEyes 设置眼睛颜色
func (h *RobotHandler) SetEyes(c *gin.Context) {
	var req EyesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	var color mecca.EyeColor
	if req.Color != "" {
		named, ok := mecca.EyeColorByName(req.Color)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": "unknown eye color " + strconv.Quote(req.Color)})
			return
		}
		color = named
	} else {
		rgb, err := mecca.NewEyeColor(deref(req.R), deref(req.G), deref(req.B))
		if err != nil {
			writeError(c, err)
			return
		}
		color = rgb
	}
	if err := h.session.SetEyeColor(c.Request.Context(), color); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eyes": color})
}

// ChestRequest 单个胸灯
type ChestRequest struct {
	Index int  `json:"index"`
	On    bool `json:"on"`
}

// SetChest 设置单个胸灯
func (h *RobotHandler) SetChest(c *gin.Context) {
	var req ChestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	if err := h.session.SetChestLight(c.Request.Context(), req.Index, req.On); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chest": h.session.Snapshot().State.Chest})
}

// ServoLightRequest 单个舵机灯
type ServoLightRequest struct {
	Servo int    `json:"servo"`
	Color string `json:"color" binding:"required"`
	Mode  *uint8 `json:"mode"`
}

// SetServoLight 设置单个舵机灯
func (h *RobotHandler) SetServoLight(c *gin.Context) {
	var req ServoLightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	color, err := mecca.ParseLEDColor(req.Color)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	if err := h.session.SetServoLight(c.Request.Context(), req.Servo, color, req.Mode); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servo": req.Servo, "color": color.String()})
}

// ServosRequest 原始舵机字节，键为舵机ID
type ServosRequest struct {
	Positions map[int]int `json:"positions" binding:"required"`
}

// SetServos 直接设置舵机原始字节（标定用）
func (h *RobotHandler) SetServos(c *gin.Context) {
	var req ServosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	if err := h.session.SetServosRaw(c.Request.Context(), req.Positions); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servos": h.session.Snapshot().State.Servos})
}

// SoundRequest 音效编号
type SoundRequest struct {
	Code *int `json:"code" binding:"required"`
}

// PlaySound 播放音效
func (h *RobotHandler) PlaySound(c *gin.Context) {
	var req SoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	if *req.Code < 0 || *req.Code > 255 {
		writeError(c, &mecca.ValidationError{Field: "sound.code", Value: *req.Code, Reason: "must be 0..255"})
		return
	}
	if err := h.session.PlaySound(c.Request.Context(), uint8(*req.Code)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": *req.Code})
}

// WheelsRequest 轮子方向（0停 1前 2后）与速度（0-255）
type WheelsRequest struct {
	LeftDir    int `json:"left_dir"`
	RightDir   int `json:"right_dir"`
	LeftSpeed  int `json:"left_speed"`
	RightSpeed int `json:"right_speed"`
}

// MoveWheels 驱动轮子
func (h *RobotHandler) MoveWheels(c *gin.Context) {
	var req WheelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeValidation, "message": err.Error()})
		return
	}
	for _, f := range []struct {
		name   string
		v, max int
	}{
		{"left_dir", req.LeftDir, int(mecca.DirBackward)},
		{"right_dir", req.RightDir, int(mecca.DirBackward)},
		{"left_speed", req.LeftSpeed, 255},
		{"right_speed", req.RightSpeed, 255},
	} {
		if f.v < 0 || f.v > f.max {
			writeError(c, &mecca.ValidationError{Field: "wheels." + f.name, Value: f.v, Reason: "must be 0.." + strconv.Itoa(f.max)})
			return
		}
	}
	w := mecca.Wheels{
		LeftDir:    mecca.Direction(req.LeftDir),
		RightDir:   mecca.Direction(req.RightDir),
		LeftSpeed:  uint8(req.LeftSpeed),
		RightSpeed: uint8(req.RightSpeed),
	}
	if err := h.session.MoveWheels(c.Request.Context(), w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Connect 显式连接（重置状态为中位）
func (h *RobotHandler) Connect(c *gin.Context) {
	if err := h.session.Connect(c.Request.Context()); err != nil {
		h.logger.Warn("connect failed", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Disconnect 主动断开
func (h *RobotHandler) Disconnect(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": h.session.LinkState().String()})
}

func queryBool(c *gin.Context, key string, def bool) bool {
	v, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
