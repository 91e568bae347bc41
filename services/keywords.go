package services

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"affiliate-poster/affiliate/aliexpress"
	"affiliate-poster/config"
)

// Modifiers are the adjective phrases of a keyword.
var Modifiers = []string{
	"Best Budget", "Top Rated", "High Quality", "Portable", "Wireless",
	"Bluetooth", "Gaming", "RGB", "Mechanical", "Silent",
	"Heavy Duty", "Fast Charging", "Ultralight", "Waterproof", "Foldable",
	"Type-C", "Magnetic", "Smart", "IoT", "Minimalist",
	"Travel Friendly", "Professional", "Gift for Him", "Gift for Her", "Trending",
	"Xiaomi", "Lenovo", "Baseus", "Anker Style", "Must Have",
}

// Products are the noun phrases of a keyword.
var Products = []string{
	// Tech & gadgets
	"Mechanical Keyboard", "Vertical Mouse", "Gaming Mouse", "Power Bank", "USB Hub",
	"GaN Charger", "Monitor Light Bar", "Monitor Arm", "Tablet Stand", "Laptop Stand",
	"Smartphone Gimbal", "Bluetooth Speaker", "TWS Earbuds", "Noise Cancelling Headphones",
	"Smart Watch", "Apple Watch Strap", "iPad Case", "NVMe SSD Enclosure", "USB Flash Drive",
	"Mini PC", "Portable Projector", "TV Stick", "Air Purifier", "Humidifier",
	"Robot Vacuum", "Cordless Vacuum", "Hair Dryer", "Electric Toothbrush", "Water Flosser",
	"Smart Scale", "Desk Fan", "Portable Monitor", "Nintendo Switch Accessories", "PS5 Stand",
	"Drone 4K", "Action Camera", "Dash Cam", "Security Camera", "Smart Doorbell",

	// Car
	"Car Vacuum Cleaner", "Tire Inflator", "Jump Starter", "OBD2 Scanner", "Car Wash Towel",
	"Car Organizer", "Car Phone Holder", "Wireless Car Charger", "Head Up Display", "Car Trash Bin",

	// Camping & outdoor
	"Camping Chair", "Camping Table", "Camping Lantern", "LED Flashlight", "Camping Stove",
	"Titanium Cup", "Sleeping Bag", "Inflatable Mat", "Camping Tent", "Fishing Reel",
	"Fishing Rod", "Lure Set", "Trekking Poles", "Bicycle Light", "Bike Computer",
	"Tactical Backpack", "Survival Kit", "Multitool", "Pocket Knife", "Heated Vest",

	// Home & DIY
	"Cordless Drill", "Precision Screwdriver Set", "Laser Distance Meter", "Digital Caliper",
	"Soldering Iron", "Glue Gun", "Motion Sensor Light", "Smart Bulb", "LED Strip Lights",
	"Kitchen Scale", "Coffee Grinder", "Milk Frother", "Vegetable Chopper", "Silicone Utensils",
}

// ErrNoKeywords is returned when a keyword source yields nothing.
var ErrNoKeywords = errors.New("keywords: no keywords available")

// GenerateKeywords returns every "modifier product" combination,
// modifier-major.
func GenerateKeywords() []string {
	out := make([]string, 0, len(Modifiers)*len(Products))
	for _, m := range Modifiers {
		for _, p := range Products {
			out = append(out, m+" "+p)
		}
	}
	return out
}

// WriteKeywordFile writes one keyword per line, replacing any existing file.
func WriteKeywordFile(path string, keywords []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("keywords: create dir: %w", err)
		}
	}
	var b strings.Builder
	for _, k := range keywords {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("keywords: write %q: %w", path, err)
	}
	return nil
}

// LoadKeywordFile reads non-blank, trimmed lines from path.
func LoadKeywordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keywords: open %q: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("keywords: read %q: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoKeywords, path)
	}
	return out, nil
}

// Selector picks one query uniformly at random from a fixed candidate set.
type Selector struct {
	keywords   []string
	categories []string
	rng        *rand.Rand
}

// NewSelector builds the candidate set described by cfg. rng may be nil.
func NewSelector(cfg *config.Config, rng *rand.Rand) (*Selector, error) {
	s := &Selector{rng: rng}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(rand.Int63()))
	}

	if cfg.QueryMode == config.QueryCategory {
		if len(cfg.CategoryIDs) == 0 {
			return nil, fmt.Errorf("%w: no category ids configured", ErrNoKeywords)
		}
		s.categories = cfg.CategoryIDs
		return s, nil
	}

	if cfg.KeywordSource == config.KeywordsFromGenerator {
		s.keywords = GenerateKeywords()
		return s, nil
	}

	kw, err := LoadKeywordFile(cfg.KeywordFile)
	if err != nil {
		return nil, err
	}
	s.keywords = kw
	return s, nil
}

// Size returns the number of candidates.
func (s *Selector) Size() int {
	return len(s.keywords) + len(s.categories)
}

// Next returns one query.
func (s *Selector) Next() aliexpress.Query {
	if len(s.categories) > 0 {
		return aliexpress.Query{CategoryID: s.categories[s.rng.Intn(len(s.categories))]}
	}
	return aliexpress.Query{Keyword: s.keywords[s.rng.Intn(len(s.keywords))]}
}
