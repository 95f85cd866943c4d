//go:build js && wasm

package main

import (
	"fmt"
	"strings"
	"syscall/js"

	"github.com/andesco/shopfront/pkg/partytown"
)

func main() {
	fmt.Println("Go main() function starting...")

	// Export the fetch function to JavaScript
	js.Global().Set("goFetch", js.FuncOf(fetchHandler))

	fmt.Println("Go WASM module loaded and ready")

	// Keep the program running
	select {}
}

func fetchHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return js.Global().Get("Promise").Call("reject", js.ValueOf("Expected 3 arguments: request, env, ctx"))
	}

	request := args[0]
	env := args[1]
	ctx := args[2]

	// Return a Promise that resolves with the response
	return js.Global().Get("Promise").New(js.FuncOf(func(this js.Value, promiseArgs []js.Value) interface{} {
		resolve := promiseArgs[0]
		reject := promiseArgs[1]

		go func() {
			defer func() {
				if r := recover(); r != nil {
					reject.Invoke(js.ValueOf(fmt.Sprintf("Panic: %v", r)))
				}
			}()

			response, err := handleRequest(request, env, ctx)
			if err != nil {
				reject.Invoke(js.ValueOf(err.Error()))
				return
			}
			resolve.Invoke(response)
		}()

		return nil
	}))
}

func handleRequest(request, env, ctx js.Value) (js.Value, error) {
	reqURL := request.Get("url").String()
	urlObj := js.Global().Get("URL").New(reqURL)
	path := urlObj.Get("pathname").String()

	switch {
	case path == partytown.ProxyPath:
		return proxyHandler(request, env, ctx)
	case path == "/ruleset":
		return rulesetHandler(request, env, ctx)
	case strings.HasPrefix(path, "/~partytown/"), strings.HasPrefix(path, "/assets/"):
		return assetHandler(request, env)
	}

	return createErrorResponse(404, "Not Found"), nil
}

// assetHandler serves static files from the ASSETS binding when there is one.
func assetHandler(request, env js.Value) (js.Value, error) {
	assets := env.Get("ASSETS")
	if assets.IsUndefined() {
		return createErrorResponse(404, "Not Found"), nil
	}
	// the returned Promise is resolved by the runtime
	return assets.Call("fetch", request), nil
}
