// Package platform binds the supervisor's service ports to the concrete
// infra implementations and holds the process defaults that go with them.
//
// platform chooses concrete implementations and constants. Runtime side
// effects remain in the instance and infra packages.
package platform
