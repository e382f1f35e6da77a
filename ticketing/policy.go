package ticketing

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// GroupPolicy lists what one user group may request.
type GroupPolicy struct {
	Modes             []string `yaml:"modes"`
	ParticipantGroups []string `yaml:"participantGroups"`
	ColumnGroups      []string `yaml:"columnGroups"`
}

// AccessPolicy is the access manager's static authorization table.
//
//	columnGroups:
//	  Visits: [Visit1.Date, Visit2.Date]
//	userGroups:
//	  Research Assessor:
//	    modes: [read]
//	    participantGroups: ["*"]
//	    columnGroups: [Visits]
type AccessPolicy struct {
	ColumnGroups map[string][]string    `yaml:"columnGroups"`
	UserGroups   map[string]GroupPolicy `yaml:"userGroups"`
}

// AllParticipantGroups in a group policy allows every participant group and
// requests for individual pseudonyms.
const AllParticipantGroups = "*"

// ParseAccessPolicy decodes a YAML policy and checks that every referenced
// column group is defined.
func ParseAccessPolicy(data []byte) (*AccessPolicy, error) {
	var policy AccessPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("invalid access policy: %w", err)
	}
	for group, groupPolicy := range policy.UserGroups {
		for _, columnGroup := range groupPolicy.ColumnGroups {
			if _, ok := policy.ColumnGroups[columnGroup]; !ok {
				return nil, fmt.Errorf("invalid access policy: user group %q references unknown column group %q", group, columnGroup)
			}
		}
		for _, mode := range groupPolicy.Modes {
			if !knownMode(mode) {
				return nil, fmt.Errorf("invalid access policy: user group %q has unknown mode %q", group, mode)
			}
		}
	}
	return &policy, nil
}

// LoadAccessPolicy reads a YAML policy file.
func LoadAccessPolicy(path string) (*AccessPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAccessPolicy(data)
}

func knownMode(mode string) bool {
	switch mode {
	case ModeRead, ModeReadMeta, ModeWrite, ModeWriteMeta:
		return true
	}
	return false
}

// Authorize checks request against the policy of userGroup and returns the
// columns the ticket covers: the explicit columns plus the members of the
// requested column groups, without duplicates.
func (p *AccessPolicy) Authorize(userGroup string, request TicketRequest2) ([]string, error) {
	groupPolicy, ok := p.UserGroups[userGroup]
	if !ok {
		return nil, fmt.Errorf("%w: no access rules for user group %q", interfaces.ErrTicketDenied, userGroup)
	}
	if len(request.Modes) == 0 {
		return nil, fmt.Errorf("%w: no access mode requested", interfaces.ErrTicketDenied)
	}

	granted := Ticket2{Modes: groupPolicy.Modes}
	for _, mode := range request.Modes {
		if !granted.HasMode(mode) {
			return nil, fmt.Errorf("%w: %s access not granted to %q", interfaces.ErrTicketDenied, mode, userGroup)
		}
	}

	allParticipants := slices.Contains(groupPolicy.ParticipantGroups, AllParticipantGroups)
	if len(request.PolymorphicPseudonyms) > 0 && !allParticipants {
		return nil, fmt.Errorf("%w: %q may not request individual participants", interfaces.ErrTicketDenied, userGroup)
	}
	for _, participantGroup := range request.ParticipantGroups {
		if !allParticipants && !slices.Contains(groupPolicy.ParticipantGroups, participantGroup) {
			return nil, fmt.Errorf("%w: participant group %q not granted to %q", interfaces.ErrTicketDenied, participantGroup, userGroup)
		}
	}

	allowedColumns := make(map[string]bool)
	for _, columnGroup := range groupPolicy.ColumnGroups {
		for _, column := range p.ColumnGroups[columnGroup] {
			allowedColumns[column] = true
		}
	}

	var columns []string
	add := func(column string) {
		if !slices.Contains(columns, column) {
			columns = append(columns, column)
		}
	}
	for _, columnGroup := range request.ColumnGroups {
		if !slices.Contains(groupPolicy.ColumnGroups, columnGroup) {
			return nil, fmt.Errorf("%w: column group %q not granted to %q", interfaces.ErrTicketDenied, columnGroup, userGroup)
		}
		for _, column := range p.ColumnGroups[columnGroup] {
			add(column)
		}
	}
	for _, column := range request.Columns {
		if !allowedColumns[column] {
			return nil, fmt.Errorf("%w: column %q not granted to %q", interfaces.ErrTicketDenied, column, userGroup)
		}
		add(column)
	}
	return columns, nil
}
