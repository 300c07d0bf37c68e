// Package dispatch routes workflow steps to their implementation.
//
// Step types of the form "plugin:<id>" run the tenant's plugin code in the
// sandbox. Every other step type is forwarded to the remote tool service as
// POST {base}/agents/{owner}/tools/{step}/run, authenticated with the
// tenant's bearer key and throttled per owner.
package dispatch
