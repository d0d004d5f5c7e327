// Package textutil normalizes user-supplied lookup keys.
//
// Registry queries accept either a domain name or a registrant's unit name.
// Input pasted from Chinese documents often carries full-width punctuation
// (for example "example。com" or "ＥＸＡＭＰＬＥ．ＣＮ"), so keys are folded to
// their narrow forms before they reach the cache or the registry.
package textutil
