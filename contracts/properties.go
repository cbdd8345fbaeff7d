package contracts

// Properties is a string-keyed property bag that remembers insertion order.
// The zero value is ready to use.
type Properties struct {
	keys   []string
	values map[string]interface{}
}

// Put stores a value, keeping the original position of an existing key
func (p *Properties) Put(key string, value interface{}) {
	if p.values == nil {
		p.values = make(map[string]interface{})
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get retrieves a value
func (p *Properties) Get(key string) (interface{}, bool) {
	value, exists := p.values[key]
	return value, exists
}

// GetString retrieves a string value, returning "" when absent or not a string
func (p *Properties) GetString(key string) string {
	value, exists := p.values[key]
	if !exists {
		return ""
	}
	str, _ := value.(string)
	return str
}

// GetBool retrieves a boolean value, returning false when absent or not a bool
func (p *Properties) GetBool(key string) bool {
	value, exists := p.values[key]
	if !exists {
		return false
	}
	b, _ := value.(bool)
	return b
}

// Remove deletes a key
func (p *Properties) Remove(key string) {
	if _, exists := p.values[key]; !exists {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order
func (p *Properties) Keys() []string {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// Len returns the number of stored properties
func (p *Properties) Len() int {
	return len(p.keys)
}

// Range calls fn for each property in insertion order until fn returns false
func (p *Properties) Range(fn func(key string, value interface{}) bool) {
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Copy returns an independent copy of the property bag
func (p *Properties) Copy() Properties {
	var out Properties
	for _, k := range p.keys {
		out.Put(k, p.values[k])
	}
	return out
}
