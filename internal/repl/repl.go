// Package repl 交互式调试命令行，直接驱动一个机器人会话
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
	"github.com/taoyao-code/meccanoid-ctl/internal/sequencer"
)

// ErrExit 用户请求退出
var ErrExit = errors.New("exit")

// ErrUsage 参数格式错误
var ErrUsage = errors.New("usage")

const helpText = `commands:
  pose <name>            执行姿态（阻塞到保持时间结束）
  anim <name>            后台执行动画，cancel 可中断
  eye <color>|<r g b>    眼睛颜色，分量 0-7
  servo <id|name> <byte> 直接设置舵机原始字节（0x40 或 64）
  chest <0-3> on|off     单个胸灯
  sound <code>           播放音效
  state                  打印状态快照
  cancel                 取消当前动作
  connect                重新连接（状态重置为中位）
  poses | anims          列出目录
  help                   显示帮助
  exit                   退出
`

// Shell 一行一条命令
type Shell struct {
	session *robot.Session
	out     io.Writer
	logger  *zap.Logger
}

// New 创建交互命令行
func New(session *robot.Session, out io.Writer, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{session: session, out: out, logger: logger}
}

// Run 读取命令直到 exit、EOF 或 ctx 结束
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	s.prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.Exec(ctx, sc.Text())
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			s.logger.Debug("command failed", zap.String("line", sc.Text()), zap.Error(err))
			fmt.Fprintln(s.out, "error:", err)
		}
		s.prompt()
	}
	return sc.Err()
}

func (s *Shell) prompt() {
	fmt.Fprintf(s.out, "mecca[%s]> ", s.session.LinkState())
}

// Exec 执行单条命令
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(s.out, helpText)
		return nil
	case "exit", "quit":
		return ErrExit
	case "poses":
		fmt.Fprintln(s.out, strings.Join(s.session.Library().PoseNames(), " "))
		return nil
	case "anims":
		fmt.Fprintln(s.out, strings.Join(s.session.Library().AnimationNames(), " "))
		return nil
	case "state":
		return s.printJSON(s.session.Snapshot())
	case "cancel":
		fmt.Fprintln(s.out, "cancelled:", s.session.Cancel())
		return nil
	case "connect":
		if err := s.session.Connect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "connected:", s.session.Snapshot().Device.Address)
		return nil
	case "pose":
		if len(args) != 1 {
			return fmt.Errorf("%w: pose <name>", ErrUsage)
		}
		res, err := s.session.ExecutePose(ctx, args[0], sequencer.Options{})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %s\n", res.Name, res.State)
		return nil
	case "anim":
		if len(args) != 1 {
			return fmt.Errorf("%w: anim <name>", ErrUsage)
		}
		res, err := s.session.SubmitAnimation(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s started (%d steps) id=%s\n", res.Name, res.TotalSteps, res.ID)
		return nil
	case "eye":
		color, err := parseEye(args)
		if err != nil {
			return err
		}
		return s.session.SetEyeColor(ctx, color)
	case "servo":
		if len(args) != 2 {
			return fmt.Errorf("%w: servo <id|name> <byte>", ErrUsage)
		}
		id, err := s.session.Table().Lookup(args[0])
		if err != nil {
			return err
		}
		raw, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("%w: servo byte %q", ErrUsage, args[1])
		}
		return s.session.SetServosRaw(ctx, map[int]int{id: int(raw)})
	case "chest":
		if len(args) != 2 {
			return fmt.Errorf("%w: chest <0-3> on|off", ErrUsage)
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: chest index %q", ErrUsage, args[0])
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		return s.session.SetChestLight(ctx, idx, on)
	case "sound":
		if len(args) != 1 {
			return fmt.Errorf("%w: sound <code>", ErrUsage)
		}
		code, err := strconv.ParseInt(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("%w: sound code %q", ErrUsage, args[0])
		}
		if code < 0 || code > 255 {
			return &mecca.ValidationError{Field: "sound.code", Value: int(code), Reason: "must be 0..255"}
		}
		return s.session.PlaySound(ctx, uint8(code))
	default:
		return fmt.Errorf("%w: unknown command %q (try help)", ErrUsage, cmd)
	}
}

func (s *Shell) printJSON(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseEye(args []string) (mecca.EyeColor, error) {
	switch len(args) {
	case 1:
		c, ok := mecca.EyeColorByName(args[0])
		if !ok {
			return mecca.EyeColor{}, fmt.Errorf("%w: unknown eye color %q", ErrUsage, args[0])
		}
		return c, nil
	case 3:
		var rgb [3]int
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return mecca.EyeColor{}, fmt.Errorf("%w: eye component %q", ErrUsage, a)
			}
			rgb[i] = v
		}
		return mecca.NewEyeColor(rgb[0], rgb[1], rgb[2])
	default:
		return mecca.EyeColor{}, fmt.Errorf("%w: eye <color>|<r g b>", ErrUsage)
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on|off, got %q", ErrUsage, s)
}
