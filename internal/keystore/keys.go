package keystore

// Keys builds the namespaced key scheme tm:{service}:{recordType}[:{kid}].
// The fixed "tm" prefix plus the owning service name keeps records of
// different services from colliding in a shared store.
type Keys struct {
	Service string
}

func (k Keys) CurrentKeyID() string {
	return "tm:" + k.Service + ":key_id"
}

func (k Keys) PrivateKey(kid string) string {
	return "tm:" + k.Service + ":private_key:" + kid
}

func (k Keys) PublicKey(kid string) string {
	return "tm:" + k.Service + ":public_key:" + kid
}

// IssuerPublicKey caches a foreign service's public key under the local
// service namespace; the issuer name is part of the key, not the namespace.
func (k Keys) IssuerPublicKey(issuer, kid string) string {
	return "tm:" + k.Service + ":issuer_public_key:" + issuer + ":" + kid
}
