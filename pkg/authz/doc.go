// Package authz composes the policy engines into a single decision
// facade.
//
// A Service answers the questions callers actually ask: can this
// subject exercise a permission, touch a resource at a level, use a
// feature, spend quota. Permission checks assemble the subject's
// effective set from its claimed permissions and role defaults, its
// plan's base permissions, and optionally its delegated grants, in that
// order. Quota checks apply the subject's plan limits over the engine
// defaults. Every decision is counted when metrics are attached.
package authz
