//go:build js && wasm

package main

import (
	"syscall/js"

	"gopkg.in/yaml.v3"
)

func rulesetHandler(request, env, ctx js.Value) (js.Value, error) {
	if getEnvVar(env, "EXPOSE_RULESET", "true") == "false" {
		return createErrorResponse(403, "Ruleset Disabled"), nil
	}

	p, err := initProxy(env)
	if err != nil {
		return createErrorResponse(500, err.Error()), nil
	}

	body, err := yaml.Marshal(p.Rules())
	if err != nil {
		return createErrorResponse(500, err.Error()), nil
	}

	headers := js.Global().Get("Object").New()
	headers.Set("Content-Type", "application/x-yaml")

	responseInit := js.Global().Get("Object").New()
	responseInit.Set("status", 200)
	responseInit.Set("headers", headers)

	return js.Global().Get("Response").New(string(body), responseInit), nil
}
