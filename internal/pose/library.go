package pose

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
)

var (
	// ErrUnknownPose 姿态不存在
	ErrUnknownPose = errors.New("unknown pose")
	// ErrUnknownAnimation 动画不存在
	ErrUnknownAnimation = errors.New("unknown animation")
)

//go:embed builtin.yaml
var builtinYAML []byte

// Library 姿态与动画目录，名称不区分大小写
type Library struct {
	poses    map[string]*Pose
	anims    map[string]*Animation
	resolved map[string]*Resolved
	bound    bool
}

// NewLibrary 创建空目录
func NewLibrary() *Library {
	return &Library{
		poses:    make(map[string]*Pose),
		anims:    make(map[string]*Animation),
		resolved: make(map[string]*Resolved),
	}
}

// Builtin 内置姿态与动画
func Builtin() (*Library, error) {
	return Parse(builtinYAML)
}

// LoadFile 从 YAML 文件加载，文件中的同名条目覆盖内置条目
func LoadFile(path string) (*Library, error) {
	lib, err := Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return lib, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pose library: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	lib.Merge(extra)
	return lib, nil
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// AddPose 添加或覆盖姿态
func (l *Library) AddPose(p *Pose) {
	l.poses[key(p.Name)] = p
	l.bound = false
}

// AddAnimation 添加或覆盖动画
func (l *Library) AddAnimation(a *Animation) {
	l.anims[key(a.Name)] = a
	l.bound = false
}

// Merge 合并另一个目录，同名覆盖
func (l *Library) Merge(other *Library) {
	for _, p := range other.poses {
		l.AddPose(p)
	}
	for _, a := range other.anims {
		l.AddAnimation(a)
	}
}

// Bind 用校准表解析全部姿态与动画步骤
// 任何姿态引用了未配置的舵机都会在这里失败，而不是等到执行时
func (l *Library) Bind(table *calibration.Table) error {
	resolved := make(map[string]*Resolved, len(l.poses))
	for k, p := range l.poses {
		r, err := p.Resolve(table)
		if err != nil {
			return err
		}
		resolved[k] = r
	}
	for _, a := range l.anims {
		for i := range a.Steps {
			s := &a.Steps[i]
			switch {
			case s.Inline != nil:
				r, err := s.Inline.Resolve(table)
				if err != nil {
					return fmt.Errorf("animation %s step %d: %w", a.Name, i+1, err)
				}
				s.resolved = r
			case s.PoseName != "":
				r, ok := resolved[key(s.PoseName)]
				if !ok {
					return fmt.Errorf("animation %s step %d: %w: %s", a.Name, i+1, ErrUnknownPose, s.PoseName)
				}
				s.resolved = r
			default:
				return fmt.Errorf("animation %s step %d: neither pose nor inline channels", a.Name, i+1)
			}
		}
	}
	l.resolved = resolved
	l.bound = true
	return nil
}

// Bound 是否已完成校准绑定
func (l *Library) Bound() bool { return l.bound }

// Pose 按名称取姿态定义
func (l *Library) Pose(name string) (*Pose, bool) {
	p, ok := l.poses[key(name)]
	return p, ok
}

// Resolved 按名称取已解析姿态
func (l *Library) Resolved(name string) (*Resolved, error) {
	r, ok := l.resolved[key(name)]
	if !ok {
		if _, exists := l.poses[key(name)]; exists && !l.bound {
			return nil, fmt.Errorf("pose %s: library not bound to calibration table", name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownPose, name)
	}
	return r, nil
}

// Animation 按名称取动画
func (l *Library) Animation(name string) (*Animation, error) {
	a, ok := l.anims[key(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnimation, name)
	}
	if !l.bound {
		return nil, fmt.Errorf("animation %s: library not bound to calibration table", name)
	}
	return a, nil
}

// PoseNames 姿态名称（按名称排序）
func (l *Library) PoseNames() []string {
	names := make([]string, 0, len(l.poses))
	for _, p := range l.poses {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// AnimationNames 动画名称（按名称排序）
func (l *Library) AnimationNames() []string {
	names := make([]string, 0, len(l.anims))
	for _, a := range l.anims {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}
