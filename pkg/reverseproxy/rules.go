package reverseproxy

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type Regex struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`
}

type KV struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Injection struct {
	Position string `yaml:"position,omitempty"`
	Append   string `yaml:"append,omitempty"`
	Prepend  string `yaml:"prepend,omitempty"`
	Replace  string `yaml:"replace,omitempty"`
}

type RuleSet []Rule

// Rule adjusts how requests for one or more upstream domains are made and how
// their responses are rewritten.
type Rule struct {
	Domain  string   `yaml:"domain,omitempty"`
	Domains []string `yaml:"domains,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
	Headers struct {
		UserAgent     string `yaml:"user-agent,omitempty"`
		XForwardedFor string `yaml:"x-forwarded-for,omitempty"`
		Referer       string `yaml:"referer,omitempty"`
		Cookie        string `yaml:"cookie,omitempty"`
		CSP           string `yaml:"content-security-policy,omitempty"`
	} `yaml:"headers,omitempty"`
	RegexRules []Regex `yaml:"regexRules,omitempty"`

	URLMods struct {
		Domain []Regex `yaml:"domain,omitempty"`
		Path   []Regex `yaml:"path,omitempty"`
		Query  []KV    `yaml:"query,omitempty"`
	} `yaml:"urlMods,omitempty"`

	Injections []Injection `yaml:"injections,omitempty"`
}

// LoadRuleSet reads every .yml/.yaml file under the ';' separated paths.
// An empty rulePaths is not an error.
func LoadRuleSet(rulePaths string) (RuleSet, error) {
	if rulePaths == "" {
		log.Printf("WARN: No ruleset specified. Set the `RULESET` environment variable to load one.")
		return RuleSet{}, nil
	}

	var ruleSet RuleSet
	var errs []error

	for _, rulePath := range strings.Split(rulePaths, ";") {
		trimmedPath := strings.TrimSpace(rulePath)
		if trimmedPath == "" {
			continue
		}

		var rules RuleSet
		err := filepath.Walk(trimmedPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !(strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")) {
				return nil
			}
			yamlFile, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read rules file '%s': %w", path, err)
			}
			var r RuleSet
			if err := yaml.Unmarshal(yamlFile, &r); err != nil {
				return fmt.Errorf("syntax error in rules file '%s': %w", path, err)
			}
			rules = append(rules, r...)
			return nil
		})

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load rules from '%s': %w", trimmedPath, err))
		} else {
			ruleSet = append(ruleSet, rules...)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("errors while loading rulesets: %v", errs)
	}

	if err := ruleSet.validate(); err != nil {
		return nil, err
	}

	log.Printf("INFO: Loaded %d rules for %d domains", ruleSet.Count(), ruleSet.DomainCount())
	return ruleSet, nil
}

// validate compiles every regex once so a bad pattern fails at startup
// instead of on the first matching request.
func (rs RuleSet) validate() error {
	for i, rule := range rs {
		all := append(append(append([]Regex{}, rule.RegexRules...), rule.URLMods.Domain...), rule.URLMods.Path...)
		for _, re := range all {
			if _, err := regexp.Compile(re.Match); err != nil {
				return fmt.Errorf("rule %d: invalid regex %q: %w", i, re.Match, err)
			}
		}
	}
	return nil
}

func (rs RuleSet) Domains() []string {
	var domains []string
	for _, rule := range rs {
		if rule.Domain != "" {
			domains = append(domains, rule.Domain)
		}
		domains = append(domains, rule.Domains...)
	}
	return domains
}

func (rs RuleSet) DomainCount() int {
	return len(rs.Domains())
}

func (rs RuleSet) Count() int {
	return len(rs)
}

// Match returns the first rule for domain (or a parent domain) whose paths,
// if any, include path.
func (rs RuleSet) Match(domain, path string) Rule {
	for _, rule := range rs {
		ruleDomains := rule.Domains
		if rule.Domain != "" {
			ruleDomains = append(append([]string{}, ruleDomains...), rule.Domain)
		}
		for _, ruleDomain := range ruleDomains {
			if !domainMatches(domain, ruleDomain) {
				continue
			}
			if len(rule.Paths) > 0 && !hasPrefixIn(path, rule.Paths) {
				continue
			}
			return rule
		}
	}
	return Rule{}
}

func domainMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func hasPrefixIn(s string, list []string) bool {
	for _, x := range list {
		if strings.HasPrefix(s, x) {
			return true
		}
	}
	return false
}
