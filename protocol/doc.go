// Package protocol defines the JSON-RPC 2.0 messages carried inside bridge
// frames.
//
// The bridge itself never looks inside a frame; these types are used by
// message engines that speak MCP over the frames:
//
//	req, err := protocol.DecodeRequest(frame)
//	if err != nil {
//	    resp := protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
//	    ...
//	}
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes are defined as constants:
//
//	CodeParseError     = -32700  // Invalid JSON
//	CodeInvalidRequest = -32600  // Invalid Request object
//	CodeMethodNotFound = -32601  // Method not found
//	CodeInvalidParams  = -32602  // Invalid method parameters
//	CodeInternalError  = -32603  // Internal server error
package protocol
