package guard

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads every *.yaml file in dir and collects the route rules
// declared in them. A missing dir yields the built-in defaults.
func LoadRules(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, err
	}

	var rules []Rule
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		var file ruleFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		rules = append(rules, file.Rules...)
	}

	if len(rules) == 0 {
		return DefaultRules(), nil
	}
	return rules, nil
}

// DefaultRules mirrors the application's route map: the home view is
// owner-gated, agent self-service pages need an active subscription, the
// public catalog routes carry no requirements.
func DefaultRules() []Rule {
	return []Rule{
		OwnerRule(RouteHome),
		{Path: RouteLogin},
		{Path: RouteAgentHouse},
		SubscriberRule(RouteProfile),
		SubscriberRule(RouteAddListing),
		SubscriberRule(RouteMyListings),
		{Path: RouteUnauthorized},
	}
}

// RuleFor returns the rule matching path, falling back to an unrestricted
// rule so the decision table stays total.
func RuleFor(rules []Rule, path string) Rule {
	for _, rule := range rules {
		if rule.Path == path {
			return rule
		}
	}
	return Rule{Path: path}
}
