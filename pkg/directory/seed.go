package directory

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Seed 目录种子数据
//
//	users:
//	  - id: u1
//	    username: alice
//	    avatar_url: https://avatars.example/alice.png
//	spaces:
//	  - id: lobby
//	    name: Lobby
//	    width: 800
//	    height: 600
//	    capacity: 50
//	  - id: board-room
//	    name: Board Room
//	    private: true
//	    owner_id: u1
//	    allow: [u2]
type Seed struct {
	Users  []SeedUser  `yaml:"users"`
	Spaces []SeedSpace `yaml:"spaces"`
}

// SeedUser 用户种子
type SeedUser struct {
	ID        string `yaml:"id"`
	Username  string `yaml:"username"`
	AvatarURL string `yaml:"avatar_url"`
}

// SeedSpace 空间种子
type SeedSpace struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	Capacity int      `yaml:"capacity"`
	OwnerID  string   `yaml:"owner_id"`
	Private  bool     `yaml:"private"`
	Allow    []string `yaml:"allow"` // 私有空间可进入的用户
}

// ParseSeed 解析 YAML 种子数据
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("directory: parse seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// LoadSeed 从文件读取种子数据
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read seed: %w", err)
	}
	return ParseSeed(data)
}

func (s *Seed) validate() error {
	users := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("directory: seed user #%d requires id and username", i)
		}
		if users[u.ID] {
			return fmt.Errorf("directory: duplicate seed user %q", u.ID)
		}
		users[u.ID] = true
	}

	spaces := make(map[string]bool, len(s.Spaces))
	for i := range s.Spaces {
		sp := &s.Spaces[i]
		if sp.ID == "" {
			return fmt.Errorf("directory: seed space #%d requires id", i)
		}
		if spaces[sp.ID] {
			return fmt.Errorf("directory: duplicate seed space %q", sp.ID)
		}
		spaces[sp.ID] = true
		if sp.Name == "" {
			sp.Name = sp.ID
		}
		if sp.Width <= 0 {
			sp.Width = 800
		}
		if sp.Height <= 0 {
			sp.Height = 600
		}
		if sp.Capacity < 0 {
			return fmt.Errorf("directory: seed space %q has negative capacity", sp.ID)
		}
	}
	return nil
}
