/*
Package security provides the certificate authority behind replication's
mutual TLS: generating a cluster root, issuing per-node certificates
from it, and persisting both as PEM files.

pkg/replication's own buildTLSConfig covers the simple case — a single
operator-provisioned certificate shared by every node as both identity
and trust anchor. CertAuthority covers the case a growing cluster
outgrows that: one root CA issuing a distinct, shorter-lived
certificate per master/replica, so a compromised or retired node's
certificate can be left to expire (or revoked at the application layer)
without re-keying the whole cluster.

# Setting up a CA

	ca := security.NewCertAuthority()
	if err := ca.Initialize(); err != nil {
		panic(err)
	}

	certDir, _ := security.GetCertDir("master", nodeID)
	if err := ca.SaveToFiles(certDir); err != nil {
		panic(err)
	}

On a later start, LoadFromFiles resumes the same root instead of
minting a new one (which would invalidate every certificate it already
issued):

	ca := security.NewCertAuthority()
	if err := ca.LoadFromFiles(certDir); err != nil {
		panic(err)
	}

# Issuing node certificates

	tlsCert, err := ca.IssueNodeCertificate(nodeID, "replica", dnsNames, ips)
	if err != nil {
		panic(err)
	}
	// tlsCert.Certificate/tlsCert.PrivateKey feed directly into a
	// crypto/tls.Config's Certificates field.

# Certificate file layout

SaveCertToFile/LoadCertFromFile and SaveCACertToFile/LoadCACertFromFile
read and write a directory of three PEM files: node.crt, node.key, and
ca.crt. CertNeedsRotation flags a certificate within 30 days of expiry
so an operator process can reissue before the old one lapses.
*/
package security
