package config

import "encoding/json"

// ChangedSections reports which top-level config sections differ between two
// configs. It compares JSON encodings so it never leaks secret values into
// logs; callers log only the section names.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		if oldCfg == newCfg {
			return nil
		}
		return []string{"all"}
	}

	var out []string
	add := func(name string, a, b any) {
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if string(ja) != string(jb) {
			out = append(out, name)
		}
	}

	add("logging", oldCfg.Logging, newCfg.Logging)
	add("scheduler", oldCfg.Scheduler, newCfg.Scheduler)
	add("digest", oldCfg.Digest, newCfg.Digest)
	add("sources", oldCfg.Sources, newCfg.Sources)
	add("delivery", oldCfg.Delivery, newCfg.Delivery)
	add("storage", oldCfg.Storage, newCfg.Storage)
	return out
}
