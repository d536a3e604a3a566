package config

import "dario.cat/mergo"

// mergeGatewayUpstreams merges built-in and user-defined upstream tables.
// A user-defined entry overrides a built-in one with the same prefix; any
// new prefix is appended.
func mergeGatewayUpstreams(builtin, user []GatewayUpstream) []GatewayUpstream {
	byPrefix := make(map[string]GatewayUpstream, len(builtin))
	order := make([]string, 0, len(builtin))
	for _, up := range builtin {
		if _, exists := byPrefix[up.Prefix]; !exists {
			order = append(order, up.Prefix)
		}
		byPrefix[up.Prefix] = up
	}
	for _, up := range user {
		if _, exists := byPrefix[up.Prefix]; !exists {
			order = append(order, up.Prefix)
		}
		byPrefix[up.Prefix] = up
	}

	result := make([]GatewayUpstream, 0, len(order))
	for _, prefix := range order {
		result = append(result, byPrefix[prefix])
	}
	return result
}

// mergeHolderDefaults merges user-provided holder defaults on top of the
// built-in defaults, preserving any field the user left zero-valued.
func mergeHolderDefaults(base *HolderDefaults, user *HolderDefaults) (*HolderDefaults, error) {
	if user == nil {
		return base, nil
	}
	merged := *base
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return &merged, nil
}
