/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reactor

// CSR subject attribute names.
const (
	CSRCountry            = "C"
	CSRState              = "ST"
	CSRLocality           = "L"
	CSROrganization       = "O"
	CSROrganizationalUnit = "OU"
	CSRCommonName         = "CN"
	CSRSurname            = "SN"
	CSRGivenName          = "GN"
	CSREmailAddress       = "emailAddress"
	CSRUniqueIdentifier   = "UID"
	CSRDescription        = "description"
)

// CSR collects certificate signing request attributes in insertion order.
type CSR struct {
	names  []string
	values map[string]string
}

func NewCSR() *CSR {
	return &CSR{values: make(map[string]string)}
}

// NewCSRFromSubject returns a CSR holding the non-empty subject fields.
func NewCSRFromSubject(s SubjectConfig) *CSR {
	c := NewCSR()
	for _, kv := range [...][2]string{
		{CSRCountry, s.Country},
		{CSRState, s.State},
		{CSRLocality, s.Locality},
		{CSROrganization, s.Organization},
		{CSROrganizationalUnit, s.OrganizationalUnit},
		{CSRCommonName, s.CommonName},
		{CSRSurname, s.Surname},
		{CSRGivenName, s.GivenName},
		{CSREmailAddress, s.Email},
		{CSRUniqueIdentifier, s.UniqueIdentifier},
		{CSRDescription, s.Description},
	} {
		if kv[1] != "" {
			c.Set(kv[0], kv[1])
		}
	}
	return c
}

// Set stores value under name. Setting an existing name keeps its position.
func (c *CSR) Set(name, value string) *CSR {
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	c.values[name] = value
	return c
}

func (c *CSR) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c *CSR) SetCountry(v string) *CSR            { return c.Set(CSRCountry, v) }
func (c *CSR) SetState(v string) *CSR              { return c.Set(CSRState, v) }
func (c *CSR) SetLocality(v string) *CSR           { return c.Set(CSRLocality, v) }
func (c *CSR) SetOrganization(v string) *CSR       { return c.Set(CSROrganization, v) }
func (c *CSR) SetOrganizationalUnit(v string) *CSR { return c.Set(CSROrganizationalUnit, v) }
func (c *CSR) SetCommonName(v string) *CSR         { return c.Set(CSRCommonName, v) }
func (c *CSR) SetSurname(v string) *CSR            { return c.Set(CSRSurname, v) }
func (c *CSR) SetGivenName(v string) *CSR          { return c.Set(CSRGivenName, v) }
func (c *CSR) SetEmailAddress(v string) *CSR       { return c.Set(CSREmailAddress, v) }
func (c *CSR) SetUniqueIdentifier(v string) *CSR   { return c.Set(CSRUniqueIdentifier, v) }

// SetData stores free form data in the description attribute.
func (c *CSR) SetData(v string) *CSR { return c.Set(CSRDescription, v) }

func (c *CSR) Len() int { return len(c.names) }

// Strings flattens the attributes into name, value pairs.
func (c *CSR) Strings() []string {
	out := make([]string, 0, 2*len(c.names))
	for _, name := range c.names {
		out = append(out, name, c.values[name])
	}
	return out
}
