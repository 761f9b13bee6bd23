// Package classify tags user text against the static keyword tables that drive phase
// transitions, quality checks and relevance checks.
package classify

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/BTreeMap/Skopos/internal/models"
	"gopkg.in/yaml.v3"
)

// Tables maps each keyword category to its trigger strings.
// A Tables value is treated as read-only once handed to a Classifier.
type Tables map[models.Category][]string

var defaultTables = Tables{
	models.CategoryEmotions: {
		"感覺", "體驗", "情緒", "害怕", "難過", "生氣", "孤單", "被忽略", "委屈", "失望", "焦慮", "壓力", "痛苦", "感受", "心情",
	},
	models.CategoryChildhood: {
		"小時候", "童年", "小孩", "爸爸", "媽媽", "父母", "家人", "學校", "幼稚園", "國小", "小學", "以前", "過去", "記得", "想起",
	},
	models.CategoryHealing: {
		"療癒", "原諒", "接納", "愛自己", "釋放", "放下", "和解", "理解", "成長", "改變", "感謝", "平靜",
	},
	models.CategoryDetails: {
		"然後", "接著", "後來", "結果", "因為", "所以", "具體", "詳細", "過程", "步驟",
	},
	models.CategoryAvoidance: {
		"不知道", "沒什麼", "還好", "普通", "沒感覺", "隨便", "都可以", "無所謂", "算了", "忘了", "沒有", "不記得",
	},
	models.CategoryLackSelfAwareness: {
		"不懂自己", "不了解自己", "茫然", "迷惘", "不知道自己", "摸不著頭緒", "沒頭緒", "找不到方向", "很混亂", "不清楚", "說不出來", "不會表達", "沒感覺", "空白",
	},
	models.CategoryAutomaticReactions: {
		"總是", "每次都", "習慣", "自然反應", "不由自主", "下意識", "反射性", "條件反射", "慣性", "本能", "直覺反應", "想都不想", "脫口而出", "馬上就", "立刻", "一聽到就", "一看到就", "又來了", "老樣子", "一樣的模式",
	},
	models.CategoryEmotionalTriggers: {
		"一生氣就", "一難過就", "一害怕就", "一緊張就", "一焦慮就", "每當", "只要", "一旦", "觸動", "引爆", "按鈕被按到", "地雷", "痛點", "敏感", "受不了", "忍不住", "控制不住",
	},
	models.CategoryBehaviorPatterns: {
		"重複", "循環", "模式", "套路", "慣例", "固定", "例行", "照舊", "依照慣例", "按照以往", "老方法", "舊習慣", "既定模式", "制式反應", "標準程序",
	},
	models.CategoryIrrelevant: {
		"今天天氣", "吃什麼", "工作", "明天", "購物", "電影", "新聞",
	},
}

// DefaultTables returns a copy of the built-in keyword tables.
func DefaultTables() Tables {
	return defaultTables.Clone()
}

// Clone returns a deep copy of the tables.
func (t Tables) Clone() Tables {
	out := make(Tables, len(t))
	for cat, words := range t {
		cp := make([]string, len(words))
		copy(cp, words)
		out[cat] = cp
	}
	return out
}

// Categories returns the category names in sorted order.
func (t Tables) Categories() []models.Category {
	cats := make([]models.Category, 0, len(t))
	for cat := range t {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// tablesFile is the on-disk layout of a keyword override file.
type tablesFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadTables reads keyword overrides from a YAML file and merges them over the defaults.
// Categories absent from the file keep their built-in trigger strings.
func LoadTables(path string) (Tables, error) {
	slog.Debug("classify.LoadTables: loading keyword tables", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return ParseTables(data)
}

// ParseTables parses YAML keyword overrides and merges them over the defaults.
func ParseTables(data []byte) (Tables, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse keyword file: %w", err)
	}
	tables := DefaultTables()
	for name, words := range f.Categories {
		cat := models.Category(name)
		if _, known := defaultTables[cat]; !known {
			slog.Warn("classify.ParseTables: ignoring unknown category", "category", name)
			continue
		}
		cleaned := make([]string, 0, len(words))
		for _, w := range words {
			if w != "" {
				cleaned = append(cleaned, w)
			}
		}
		tables[cat] = cleaned
		slog.Debug("classify.ParseTables: category overridden", "category", name, "count", len(cleaned))
	}
	return tables, nil
}
