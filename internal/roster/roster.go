package roster

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// moneyPrecision is the number of decimal places kept on every amount (0.01).
const moneyPrecision int32 = 2

var ErrUnknownPosition = errors.New("unknown position")

type Position string

const (
	PositionKeeper     Position = "keeper"
	PositionBatter     Position = "batter"
	PositionBowler     Position = "bowler"
	PositionAllRounder Position = "all_rounder"
)

// Positions lists every position in a stable order.
var Positions = []Position{PositionKeeper, PositionBatter, PositionBowler, PositionAllRounder}

func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case PositionKeeper, PositionBatter, PositionBowler, PositionAllRounder:
		return Position(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPosition, s)
}

type Player struct {
	ID        string
	Name      string
	Position  Position
	BasePrice decimal.Decimal
	HomeTeam  string // empty when the player has no franchise to match
	Overseas  bool
}

type Team struct {
	ID   string
	Name string
}

// Limits are the squad-composition and money rules shared by every team.
type Limits struct {
	InitialBudget  decimal.Decimal
	MaxSquad       int
	MaxOverseas    int
	MinViableBid   decimal.Decimal
	MinIncrement   decimal.Decimal
	MinPerPosition map[Position]int
}

// Catalog is the read-only roster: fixed at startup and safe for concurrent reads.
type Catalog struct {
	Limits  Limits
	teams   []Team
	players []Player
	teamIdx map[string]int
	playIdx map[string]int
}

func NewCatalog(limits Limits, teams []Team, players []Player) (*Catalog, error) {
	c := &Catalog{
		Limits:  limits,
		teams:   teams,
		players: players,
		teamIdx: make(map[string]int, len(teams)),
		playIdx: make(map[string]int, len(players)),
	}
	if limits.MinPerPosition == nil {
		c.Limits.MinPerPosition = map[Position]int{}
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	if c.Limits.MaxSquad <= 0 {
		return errors.New("limits.max_squad must be > 0")
	}
	if !c.Limits.InitialBudget.IsPositive() {
		return errors.New("limits.initial_budget must be > 0")
	}
	if len(c.teams) == 0 {
		return errors.New("at least one team is required")
	}
	for i, t := range c.teams {
		if t.ID == "" {
			return fmt.Errorf("teams[%d]: id is required", i)
		}
		if _, dup := c.teamIdx[t.ID]; dup {
			return fmt.Errorf("duplicate team id %q", t.ID)
		}
		c.teamIdx[t.ID] = i
	}
	for i, p := range c.players {
		if p.ID == "" {
			return fmt.Errorf("players[%d]: id is required", i)
		}
		if _, dup := c.playIdx[p.ID]; dup {
			return fmt.Errorf("duplicate player id %q", p.ID)
		}
		if _, err := ParsePosition(string(p.Position)); err != nil {
			return fmt.Errorf("player %q: %w", p.ID, err)
		}
		if p.BasePrice.IsNegative() {
			return fmt.Errorf("player %q: negative base price", p.ID)
		}
		if p.HomeTeam != "" {
			if _, ok := c.teamIdx[p.HomeTeam]; !ok {
				return fmt.Errorf("player %q: unknown home team %q", p.ID, p.HomeTeam)
			}
		}
		c.playIdx[p.ID] = i
	}
	return nil
}

func (c *Catalog) Team(id string) (Team, bool) {
	i, ok := c.teamIdx[id]
	if !ok {
		return Team{}, false
	}
	return c.teams[i], true
}

func (c *Catalog) Player(id string) (Player, bool) {
	i, ok := c.playIdx[id]
	if !ok {
		return Player{}, false
	}
	return c.players[i], true
}

// TeamIDs returns the team identifiers in catalog order.
func (c *Catalog) TeamIDs() []string {
	ids := make([]string, len(c.teams))
	for i, t := range c.teams {
		ids[i] = t.ID
	}
	return ids
}

// Players returns the catalog sorted by id.
func (c *Catalog) Players() []Player {
	out := append([]Player(nil), c.players...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Money rounds an amount to the catalog precision.
func Money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(moneyPrecision)
}

// IsMoney reports whether d is representable at the catalog precision without
// rounding. Amounts from clients must pass this before they touch a budget.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyPrecision))
}

type fileLimits struct {
	InitialBudget  float64        `yaml:"initial_budget"`
	MaxSquad       int            `yaml:"max_squad"`
	MaxOverseas    int            `yaml:"max_overseas"`
	MinViableBid   float64        `yaml:"min_viable_bid"`
	MinIncrement   float64        `yaml:"min_increment"`
	MinPerPosition map[string]int `yaml:"min_per_position"`
}

type fileTeam struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type filePlayer struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Position  string  `yaml:"position"`
	BasePrice float64 `yaml:"base_price"`
	HomeTeam  string  `yaml:"home_team"`
	Overseas  bool    `yaml:"overseas"`
}

type file struct {
	Limits  fileLimits   `yaml:"limits"`
	Teams   []fileTeam   `yaml:"teams"`
	Players []filePlayer `yaml:"players"`
}

// Load reads a YAML roster file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster yaml: %w", err)
	}

	limits := Limits{
		InitialBudget:  Money(f.Limits.InitialBudget),
		MaxSquad:       f.Limits.MaxSquad,
		MaxOverseas:    f.Limits.MaxOverseas,
		MinViableBid:   Money(f.Limits.MinViableBid),
		MinIncrement:   Money(f.Limits.MinIncrement),
		MinPerPosition: make(map[Position]int, len(f.Limits.MinPerPosition)),
	}
	for name, n := range f.Limits.MinPerPosition {
		pos, err := ParsePosition(name)
		if err != nil {
			return nil, fmt.Errorf("limits.min_per_position: %w", err)
		}
		limits.MinPerPosition[pos] = n
	}

	teams := make([]Team, len(f.Teams))
	for i, t := range f.Teams {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		teams[i] = Team{ID: t.ID, Name: name}
	}

	players := make([]Player, len(f.Players))
	for i, p := range f.Players {
		players[i] = Player{
			ID:        p.ID,
			Name:      p.Name,
			Position:  Position(p.Position),
			BasePrice: Money(p.BasePrice),
			HomeTeam:  p.HomeTeam,
			Overseas:  p.Overseas,
		}
	}

	return NewCatalog(limits, teams, players)
}
