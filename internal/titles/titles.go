// Package titles sorts free-text job titles into a fixed set of
// designation buckets.
package titles

import (
	"regexp"
	"strings"
)

// Designation buckets, in match order.
const (
	FounderCEO     = "Founder / CEO"
	CTOCIO         = "CTO / CIO / IT Head"
	VPEngineering  = "VP / Director of Engineering"
	QALead         = "QA Manager / QA Lead"
	ProductOwner   = "Product Owner / Manager"
	ProjectManager = "Project Manager"
	Other          = "Other"
)

type rule struct {
	bucket string
	match  *regexp.Regexp
	// ignore is removed from the title before match is tried.
	ignore *regexp.Regexp
}

// terms compiles an alternation that only matches whole terms: each term
// must be bounded by the string ends or a non-alphanumeric character.
func terms(alts ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

var rules = []rule{
	{
		bucket: FounderCEO,
		match: terms(`founder`, `ceo`, `chief executive officer`, `president`, `owner`, `co[- ]?founder`,
			`co[- ]?ceo`, `algemeen directeur`, `geschäftsführer`, `md and co - founder`,
			`managing director \(cto\)`, `chairman`),
		// "Vice President" and "Product Owner" belong to later buckets.
		ignore: terms(`vice president`, `product owner`),
	},
	{
		bucket: CTOCIO,
		match: terms(`cto`, `chief technology officer`, `chief technical officer`, `cheif technology officer`,
			`cio`, `chief information officer`, `it head`, `head of it`, `it director`, `chief digital officer`,
			`chief digital & information officer`, `chief technology & data officer`,
			`chief technology & innovation`, `chief technology & operations officer`,
			`chief information security officer`, `ciso`, `head of technology`, `group cio`, `group cto`,
			`corporate information technology manager`, `dsi / cto`, `information chief & technology architect`,
			`it manager`, `global head of it`, `interim cio`, `interim cto`, `partner & cto`, `chief ai architect`,
			`chief artificial intelligence officer`, `chief technology lead`),
	},
	{
		bucket: VPEngineering,
		match: terms(`vp engineering`, `vice president engineering`, `director of engineering`,
			`engineering director`, `head of engineering`, `engineering manager`, `associate engineering manager`,
			`lead engineer`, `lead developer`, `technical director`, `software engineering manager`,
			`hardware engineering manager`, `cloud engineering manager`, `data engineering manager`,
			`applied engineering manager`, `architect , customer first product success and quality`,
			`solutions architect`, `associate director, engineering`, `group engineering manager`,
			`global head of engineering`, `principal engineer`, `sr\. manager, engineering`,
			`staff software engineer`, `software architect`, `assistant manager engineering`,
			`vp of engineering`, `vp of software engineering`),
	},
	{
		bucket: QALead,
		match: terms(`qa manager`, `qa lead`, `quality assurance manager`, `quality assurance lead`, `quality lead`,
			`director - quality assurance`, `head of quality assurance`, `quality engineer`, `quality control`,
			`associate director - quality assurance`, `assistant director - quality assurance`,
			`lead quality assurance engineer`, `software quality assurance`, `test manager`,
			`quality assurance business head`, `quality and devops`, `assurance quality operations`,
			`head - purchase quality assurance`, `it director of quality assurance`,
			`practice head , quality assurance`, `principal quality assurance analyst`,
			`principal quality assurance engineer`, `director engineering quality assurance`,
			`manager - assurance quality services`),
	},
	{
		bucket: ProductOwner,
		match: terms(`product manager`, `product owner`, `head of product`, `chief product officer`, `cpo`,
			`vp product`, `director of product`, `associate product manager`, `assistant product manager`,
			`product lead`, `product strategist`, `product specialist`, `agile product manager`,
			`ai product owner`, `brand product manager`, `digital product manager`, `clinical product leader`,
			`chief products officer`, `chief product & engineering officer`, `chief product & strategy officer`,
			`chief product & tech officer`, `chief product & technology officer`,
			`chief product and business development officer`, `chief product and marketing officer`,
			`chief product and operations officer`, `chief product and technology officer`,
			`chief product manager`, `chief product owner`, `global product manager`, `principal product manager`,
			`principal product owner`, `product development manager`, `product marketing manager`,
			`product management`, `product management lead`, `produktmanager`, `^product$`),
	},
	{
		bucket: ProjectManager,
		match: terms(`project manager`, `program manager`, `agile program manager`, `agile project manager`,
			`assistant director - project manager`, `assistant director , project manager`,
			`associate director , project manager`, `business program manager`, `project coordinator`,
			`pmo manager`, `global product / project manager`, `global program manager`,
			`head of program & project delivery`, `head of project management office`,
			`information technology project manager`, `it project manager`, `senior project manager`),
	},
}

// Buckets lists every designation in match order, Other last.
func Buckets() []string {
	out := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.bucket)
	}
	return append(out, Other)
}

// Categorize returns the first bucket whose terms appear in title, or
// Other. Blank titles are Other.
func Categorize(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return Other
	}
	for _, r := range rules {
		s := t
		if r.ignore != nil {
			s = r.ignore.ReplaceAllString(s, " ")
		}
		if r.match.MatchString(s) {
			return r.bucket
		}
	}
	return Other
}
