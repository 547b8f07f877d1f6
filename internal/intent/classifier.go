package intent

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

const (
	minCategoryScore   = 0.3
	greetingConfidence = 0.9
	firstMatchScore    = 0.5
	extraMatchBonus    = 0.15
	coverageWeight     = 0.5
)

// ProductTerm maps a spoken name to a catalog product.
type ProductTerm struct {
	Term      string
	ProductID string
	Name      string
}

type actionRule struct {
	action   string
	keywords []string
}

type categoryRules struct {
	category      enums.IntentCategory
	keywords      []string
	actions       []actionRule
	defaultAction string
}

var greetings = []string{"안녕", "안녕하세요", "반가워", "반갑습니다", "하이", "hello", "hi", "hey"}

var categories = []categoryRules{
	{
		category: enums.IntentCategoryProduct,
		keywords: []string{"메뉴", "상품", "찾아", "검색", "추천", "담아", "추가", "넣어", "menu", "product", "search", "find", "recommend", "add"},
		actions: []actionRule{
			{ActionRecommend, []string{"추천", "recommend", "뭐가 좋", "인기"}},
			{ActionAdd, []string{"담아", "추가", "넣어", "주세요", "줘", "add", "want", "i'll have"}},
			{ActionDetail, []string{"설명", "얼마", "뭐야", "어떤 거", "detail", "price", "how much"}},
		},
		defaultAction: ActionSearch,
	},
	{
		category: enums.IntentCategoryCoupon,
		keywords: []string{"쿠폰", "할인", "코드", "프로모션", "적용", "coupon", "discount", "promo", "code"},
		actions: []actionRule{
			{ActionApply, []string{"적용", "사용", "쓸게", "써줘", "apply", "use"}},
			{ActionValidate, []string{"확인", "유효", "되나", "valid", "check"}},
		},
		defaultAction: ActionList,
	},
	{
		category: enums.IntentCategoryOrder,
		keywords: []string{"주문", "결제", "계산", "배달", "포장", "픽업", "order", "checkout", "pay", "delivery", "pickup"},
		actions: []actionRule{
			{ActionCancel, []string{"취소", "cancel"}},
			{ActionStatus, []string{"상태", "어디", "언제 와", "status", "where"}},
			{ActionPickup, []string{"픽업 시간", "픽업 예약", "시에 픽업", "schedule"}},
		},
		defaultAction: ActionCreate,
	},
}

// Classifier is a rule-based intent reader. It holds only immutable tables
// and is safe for concurrent use.
type Classifier struct {
	terms []ProductTerm
}

// NewClassifier builds a classifier that recognizes the given product terms.
// Longer terms are matched first so "아이스 아메리카노" wins over "아메리카노".
func NewClassifier(terms []ProductTerm) *Classifier {
	cp := make([]ProductTerm, 0, len(terms))
	for _, t := range terms {
		t.Term = Normalize(t.Term)
		if t.Term == "" {
			continue
		}
		cp = append(cp, t)
	}
	sort.SliceStable(cp, func(i, j int) bool {
		return utf8.RuneCountInString(cp[i].Term) > utf8.RuneCountInString(cp[j].Term)
	})
	return &Classifier{terms: cp}
}

// Normalize applies NFC, lowercases and trims.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(text)))
}

// Classify reads one utterance. Identical input always yields identical output.
func (c *Classifier) Classify(text string) Intent {
	normalized := Normalize(text)
	if normalized == "" {
		return Intent{Category: enums.IntentCategoryGeneral, Action: ActionChat, Slots: map[string]string{}}
	}
	if isGreeting(normalized) {
		return Intent{
			Category:   enums.IntentCategoryGeneral,
			Action:     ActionGreeting,
			Confidence: greetingConfidence,
			Slots:      map[string]string{},
		}
	}

	product, productFound := c.matchProduct(normalized)

	best := enums.IntentCategoryGeneral
	bestScore := 0.0
	var bestRules *categoryRules
	for i := range categories {
		rules := &categories[i]
		extra := []string(nil)
		if rules.category == enums.IntentCategoryProduct && productFound {
			extra = []string{product.Term}
		}
		score := categoryScore(normalized, rules.keywords, extra)
		if score > bestScore {
			best, bestScore, bestRules = rules.category, score, rules
		}
	}

	if bestScore < minCategoryScore || bestRules == nil {
		return Intent{
			Category:   enums.IntentCategoryGeneral,
			Action:     ActionChat,
			Confidence: round2(bestScore),
			Slots:      map[string]string{},
		}
	}

	out := Intent{
		Category:   best,
		Action:     detectAction(normalized, bestRules),
		Confidence: round2(bestScore),
	}
	out.Slots = c.extractSlots(text, normalized, out.Category)
	return out
}

// categoryScore starts at a fixed base for the first keyword hit, adds a bonus
// per extra hit and a share proportional to how much of the utterance the
// keywords cover.
func categoryScore(text string, keywords, extra []string) float64 {
	textLen := utf8.RuneCountInString(text)
	if textLen == 0 {
		return 0
	}
	matched := 0
	weight := 0
	for _, set := range [][]string{keywords, extra} {
		for _, kw := range set {
			if containsKeyword(text, kw) {
				matched++
				weight += utf8.RuneCountInString(kw)
			}
		}
	}
	if matched == 0 {
		return 0
	}
	coverage := float64(weight) / float64(textLen)
	if coverage > 1 {
		coverage = 1
	}
	score := firstMatchScore + extraMatchBonus*float64(matched-1) + coverageWeight*coverage
	if score > 1 {
		score = 1
	}
	return score
}

func detectAction(text string, rules *categoryRules) string {
	for _, rule := range rules.actions {
		for _, kw := range rule.keywords {
			if containsKeyword(text, kw) {
				return rule.action
			}
		}
	}
	return rules.defaultAction
}

// containsKeyword matches Hangul keywords anywhere and ASCII keywords only
// as whole words, so "add" misses "address". Digits may touch an ASCII
// keyword ("3pm").
func containsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	if !isASCII(kw) {
		return strings.Contains(text, kw)
	}
	for from := 0; from <= len(text)-len(kw); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if !asciiLetterBefore(text, start) && !asciiLetterAt(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func asciiLetterBefore(text string, i int) bool {
	return i > 0 && isASCIILetter(text[i-1])
}

func asciiLetterAt(text string, i int) bool {
	return i < len(text) && isASCIILetter(text[i])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isGreeting reports whether the utterance is nothing but greeting words.
func isGreeting(text string) bool {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !isGreetingToken(tok) {
			return false
		}
	}
	return true
}

func isGreetingToken(tok string) bool {
	for _, g := range greetings {
		if tok == g {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

func (c *Classifier) matchProduct(text string) (ProductTerm, bool) {
	for _, t := range c.terms {
		if containsKeyword(text, t.Term) {
			return t, true
		}
	}
	return ProductTerm{}, false
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
