package kms_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/kms"
)

func TestClientCA(t *testing.T) {
	pki := pkitest.New(t)

	_, err := kms.NewClientCA(pki.ServerCA, time.Hour)
	require.Error(t, err)

	ca, err := kms.NewClientCA(pki.ClientCA, 0)
	require.NoError(t, err)

	_, csr, err := cryptoutils.CreateCSR("alice", "Research Assessor")
	require.NoError(t, err)

	chain, err := ca.SignCSR(csr)
	require.NoError(t, err)
	require.NoError(t, chain.Verify(pki.Roots, time.Now()))
	assert.Equal(t, interfaces.PartyUser, cryptoutils.GetEnrolledParty(chain))
	assert.WithinDuration(t, time.Now().Add(kms.DefaultUserCertificateValidity), chain.Leaf().NotAfter, time.Minute)

	_, noGroup, err := cryptoutils.CreateCSR("alice", "")
	require.NoError(t, err)
	_, err = ca.SignCSR(noGroup)
	require.Error(t, err)

	_, err = ca.SignCSR(cryptoutils.CSRPEM("garbage"))
	require.Error(t, err)
}
