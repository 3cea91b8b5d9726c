// Package el evaluates the gateway expression language, a CEL
// environment exposing the request, the response, the execution
// attributes and the current phase:
//
//	request.method == "GET" && request.headers["x-tier"] == "gold"
//	response.status >= 500
//	ip_in_range(request.remoteAddr, "10.0.0.0/8")
//
// Compiled programs are cached per expression text, so evaluating the
// same condition for every request only pays the compilation once.
package el
