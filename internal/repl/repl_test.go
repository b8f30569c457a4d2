package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
)

func newShell(t *testing.T) (*Shell, *robot.Session, *bytes.Buffer) {
	t.Helper()
	table := calibration.Default()
	lib, err := pose.Builtin()
	require.NoError(t, err)
	require.NoError(t, lib.Bind(table))

	s, err := robot.NewSession(robot.Options{
		Link: link.Config{
			Filter:          link.Filter{NamePrefix: "MECCANOID"},
			ScanTimeout:     100 * time.Millisecond,
			ConnectAttempts: 1,
			FrameInterval:   time.Millisecond,
			ReconnectBudget: 1,
		},
		DefaultHold: time.Millisecond,
	}, link.NewSimTransport(nil), table, lib, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	var out bytes.Buffer
	return New(s, &out, nil), s, &out
}

func TestShell_Commands(t *testing.T) {
	sh, s, out := newShell(t)
	ctx := context.Background()

	t.Run("眼睛颜色名与RGB", func(t *testing.T) {
		require.NoError(t, sh.Exec(ctx, "eye cyan"))
		assert.Equal(t, mecca.EyeColor{G: 7, B: 7}, s.Snapshot().State.Eyes)
		require.NoError(t, sh.Exec(ctx, "eye 1 2 3"))
		assert.Equal(t, mecca.EyeColor{R: 1, G: 2, B: 3}, s.Snapshot().State.Eyes)
		assert.ErrorIs(t, sh.Exec(ctx, "eye 8 0 0"), mecca.ErrValidation)
		assert.ErrorIs(t, sh.Exec(ctx, "eye plaid"), ErrUsage)
	})

	t.Run("舵机按名称或ID", func(t *testing.T) {
		require.NoError(t, sh.Exec(ctx, "servo right_elbow 0x90"))
		assert.Equal(t, uint8(0x90), s.Snapshot().State.Servos[1])
		require.NoError(t, sh.Exec(ctx, "servo 2 100"))
		assert.Equal(t, uint8(100), s.Snapshot().State.Servos[2])
		assert.ErrorIs(t, sh.Exec(ctx, "servo 2 0x10"), mecca.ErrValidation)
		assert.ErrorIs(t, sh.Exec(ctx, "servo nose 0x80"), calibration.ErrCalibration)
	})

	t.Run("胸灯与音效", func(t *testing.T) {
		require.NoError(t, sh.Exec(ctx, "chest 2 on"))
		assert.True(t, s.Snapshot().State.Chest[2])
		assert.ErrorIs(t, sh.Exec(ctx, "chest 2 maybe"), ErrUsage)
		require.NoError(t, sh.Exec(ctx, "sound 4"))
		assert.ErrorIs(t, sh.Exec(ctx, "sound 300"), mecca.ErrValidation)
	})

	t.Run("姿态与目录", func(t *testing.T) {
		out.Reset()
		require.NoError(t, sh.Exec(ctx, "pose T_Pose"))
		assert.Contains(t, out.String(), "completed")
		out.Reset()
		require.NoError(t, sh.Exec(ctx, "poses"))
		assert.Contains(t, out.String(), "Arms_Up")
	})

	t.Run("未知命令", func(t *testing.T) {
		assert.ErrorIs(t, sh.Exec(ctx, "dance"), ErrUsage)
		assert.NoError(t, sh.Exec(ctx, "   "))
	})
}

func TestShell_Run(t *testing.T) {
	sh, s, out := newShell(t)
	in := strings.NewReader("help\nchest 0 on\nbogus\nstate\nexit\nchest 1 on\n")

	require.NoError(t, sh.Run(context.Background(), in))

	assert.Contains(t, out.String(), "commands:")
	assert.Contains(t, out.String(), "error: usage")
	assert.Contains(t, out.String(), `"link": "ready"`)
	assert.Contains(t, out.String(), "mecca[ready]> ")
	chest := s.Snapshot().State.Chest
	assert.True(t, chest[0])
	assert.False(t, chest[1], "exit 之后的命令不执行")
}
