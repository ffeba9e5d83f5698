// Package plans maps users to service tiers.
//
// A Plan bundles resource limits, feature access, a base permission set,
// and pricing. Subscriptions bind one user to one plan at a time;
// subscribing cancels any prior active subscription, and expiry is
// detected lazily on read, deactivating the record in place. Users
// without an active subscription resolve to the "free" plan.
package plans
