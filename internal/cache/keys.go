package cache

import "strings"

// KeyPrices returns the key holding the price records of a variant and material.
func KeyPrices(variantID, materialID string) string {
	return "prices:" + strings.ToLower(strings.TrimSpace(variantID)) + ":" + strings.ToLower(strings.TrimSpace(materialID))
}

// KeyCustomer returns the key holding a customer record.
func KeyCustomer(id string) string {
	return "customer:" + strings.TrimSpace(id)
}
